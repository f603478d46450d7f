package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tbsa/internal/report"
)

// KeygenResult names the files keygen wrote.
type KeygenResult struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

func (r KeygenResult) String() string {
	return fmt.Sprintf("wrote %s and %s", r.PrivateKey, r.PublicKey)
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen <private-key-path>",
		Short: "Generate an attestation signing key",
		Long: `Generate an Ed25519 key pair for signing reports. The private key is
written as PKCS#8 PEM to the given path and the public key as PKIX PEM
next to it with a .pub suffix.

Examples:
  tbsa keygen key.pem
  tbsa run --target t.yaml --sign-key key.pem
  tbsa verify report.json --pub-key key.pem.pub`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateKey(rootOpts, args[0], force, cmd)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing key files")

	return cmd
}

func generateKey(opts *RootOptions, privPath string, force bool, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	pubPath := privPath + ".pub"

	if !force {
		for _, p := range []string{privPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return out.fail(ExitCommandError, CodeKey, "key file exists (use --force)", errors.New(p))
			}
		}
	}

	privPEM, pubPEM, err := report.GenerateKey()
	if err != nil {
		return out.fail(ExitCommandError, CodeKey, "failed to generate key", err)
	}
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return out.fail(ExitCommandError, CodeKey, "failed to write private key", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return out.fail(ExitCommandError, CodeKey, "failed to write public key", err)
	}

	opts.logger().Infow("signing key generated", "private_key", privPath, "public_key", pubPath)
	return out.Success(KeygenResult{PrivateKey: privPath, PublicKey: pubPath})
}
