package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tbsa/internal/report"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	PublicKey string
	Database  string
	RunID     string
}

// VerifyResult is the outcome of a successful verification.
type VerifyResult struct {
	RunID  string `json:"run_id"`
	Target string `json:"target"`
	Digest string `json:"digest"`
	Signed bool   `json:"signed"`
}

func (r VerifyResult) String() string {
	if r.Signed {
		return fmt.Sprintf("OK: run %s on %s, digest %s, attestation valid", r.RunID, r.Target, r.Digest)
	}
	return fmt.Sprintf("OK: run %s on %s, digest %s", r.RunID, r.Target, r.Digest)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify [report.json]",
		Short: "Verify a report digest and attestation",
		Long: `Recompute a report's digest and, with --pub-key, check its signed
attestation. The report is read from a JSON file written by
"run --out", or from a database with --db and --run.

Exit codes:
  0 - Report verified
  1 - Digest or attestation did not verify
  2 - Command error

Examples:
  tbsa verify report.json
  tbsa verify report.json --pub-key key.pub.pem
  tbsa verify --db runs.db --run 01925c4e-7d6b-7c3a-9b1e-3f2a6c8d9e0f --pub-key key.pub.pem`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyReport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PublicKey, "pub-key", "", "Ed25519 public key to check the attestation with")
	cmd.Flags().StringVar(&opts.Database, "db", "", "read the report from this database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to read from --db")

	return cmd
}

func verifyReport(opts *VerifyOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	rep, err := loadReport(opts, args, cmd)
	if err != nil {
		return err
	}

	if opts.PublicKey == "" {
		digest, err := rep.ComputeDigest()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to compute digest", err)
		}
		if digest != rep.Digest {
			return out.fail(ExitFailure, CodeVerify, "report did not verify", report.ErrDigestMismatch)
		}
		return out.Success(VerifyResult{RunID: rep.RunID, Target: rep.Target, Digest: rep.Digest})
	}

	pub, err := report.LoadPublicKey(opts.PublicKey)
	if err != nil {
		return out.fail(ExitCommandError, CodeKey, "failed to load public key", err)
	}
	claims, err := report.Verify(rep, pub)
	if err != nil {
		return out.fail(ExitFailure, CodeVerify, "report did not verify", err)
	}
	return out.Success(VerifyResult{RunID: claims.RunID, Target: claims.Target, Digest: claims.Digest, Signed: true})
}

// loadReport reads the report named by the arguments: a JSON file, or a
// stored run.
func loadReport(opts *VerifyOptions, args []string, cmd *cobra.Command) (*report.Report, error) {
	out := opts.formatter(cmd)

	switch {
	case len(args) == 1 && opts.Database == "":
		f, err := os.Open(args[0])
		if err != nil {
			return nil, out.fail(ExitCommandError, CodeVerify, "failed to open report", err)
		}
		defer f.Close()
		rep, err := report.ReadJSON(f)
		if err != nil {
			return nil, out.fail(ExitCommandError, CodeVerify, "failed to parse report", err)
		}
		return rep, nil

	case len(args) == 0 && opts.Database != "" && opts.RunID != "":
		st, err := openExisting(opts.Database)
		if err != nil {
			return nil, out.fail(ExitCommandError, CodeStore, "failed to open database", err)
		}
		defer st.Close()
		rep, err := st.ReadReport(commandContext(cmd), opts.RunID)
		if err != nil {
			return nil, out.fail(ExitCommandError, CodeStore, "failed to read run", err)
		}
		return rep, nil

	default:
		return nil, NewExitError(ExitCommandError, "pass a report file, or --db with --run")
	}
}
