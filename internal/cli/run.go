package cli

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tbsa/internal/config"
	"github.com/roach88/tbsa/internal/harness"
	"github.com/roach88/tbsa/internal/report"
	"github.com/roach88/tbsa/internal/store"
	"github.com/roach88/tbsa/internal/target"
	"github.com/roach88/tbsa/internal/testpool"
	"github.com/roach88/tbsa/internal/val"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Target   string
	Group    string
	ID       uint32
	Database string
	SignKey  string
	Budget   int
	Timeout  time.Duration
	Delivery string
	Out      string

	// RunIDGenerator overrides the run ID source (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator harness.RunIDGenerator

	// Clock overrides the wall clock (for testing). If nil, time.Now.
	Clock func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run compliance tests against a target",
		Long: `Run the built-in compliance tests against a target description.

Tests run one at a time in group, then ID order. The report lists one
result per test followed by a summary. With --verbose each result is also
logged to stderr as it completes.

Exit codes:
  0 - Every selected test passed or was skipped
  1 - A test failed or was indeterminate
  2 - Command error (bad target file, database error, etc.)

Examples:
  tbsa run --target targets/fvp-sse200.yaml
  tbsa run --target targets/fvp-sse200.yaml --group DEBUG --id 7
  tbsa run --target targets/fvp-sse200.yaml --db runs.db --sign-key key.pem
  tbsa run --target targets/fvp-sse200.yaml --out report.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompliance(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "target description file (default $TBSA_TARGET)")
	cmd.Flags().StringVar(&opts.Group, "group", "", "run only this test group (e.g. DEBUG)")
	cmd.Flags().Uint32Var(&opts.ID, "id", 0, "run only this test ID")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database (default $TBSA_DB)")
	cmd.Flags().StringVar(&opts.SignKey, "sign-key", "", "Ed25519 private key for the attestation (default $TBSA_SIGNING_KEY)")
	cmd.Flags().IntVar(&opts.Budget, "budget", 0, "spin budget for pending waits (default $TBSA_SPIN_BUDGET)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "deadline for pending waits (default $TBSA_PENDING_TIMEOUT)")
	cmd.Flags().StringVar(&opts.Delivery, "delivery", "", "exception delivery: async or sync (default $TBSA_DELIVERY)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "also write the report as JSON to this file")

	return cmd
}

// effective merges flags over the loaded configuration.
func (o *RunOptions) effective() (config.Config, error) {
	cfg := o.settings()
	if o.Target != "" {
		cfg.TargetPath = o.Target
	}
	if o.Database != "" {
		cfg.DBPath = o.Database
	}
	if o.SignKey != "" {
		cfg.SigningKey = o.SignKey
	}
	if o.Budget != 0 {
		cfg.SpinBudget = o.Budget
	}
	if o.Timeout != 0 {
		cfg.PendingTimeout = o.Timeout
	}
	if o.Delivery != "" {
		cfg.Delivery = o.Delivery
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.TargetPath == "" {
		return config.Config{}, errors.New("no target: pass --target or set " + config.EnvTarget)
	}
	return cfg, nil
}

// filter builds the selection from --group and --id.
func (o *RunOptions) filter() (harness.Filter, error) {
	f := harness.Filter{ID: o.ID}
	if o.Group != "" {
		g, err := harness.ParseGroup(o.Group)
		if err != nil {
			return harness.Filter{}, err
		}
		f.Group = g
	}
	return f, nil
}

func runCompliance(opts *RunOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	logger := opts.logger()

	cfg, err := opts.effective()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid run configuration", err)
	}
	filter, err := opts.filter()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid selection", err)
	}

	platform, err := target.Load(cfg.TargetPath)
	if err != nil {
		return out.fail(ExitCommandError, CodeTarget, "failed to load target", err)
	}
	logger.Infow("target loaded", "target", platform.Name(), "tbsa_version", platform.Version(), "path", cfg.TargetPath)

	reg := harness.NewRegistry()
	if err := testpool.Register(reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to build test catalog", err)
	}
	cases := reg.Select(filter)
	if len(cases) == 0 {
		return out.fail(ExitCommandError, CodeSelect, "no tests match the selection", nil)
	}

	// Load the key before running so a bad key does not waste a run.
	var signer ed25519.PrivateKey
	if cfg.SigningKey != "" {
		signer, err = report.LoadPrivateKey(cfg.SigningKey)
		if err != nil {
			return out.fail(ExitCommandError, CodeKey, "failed to load signing key", err)
		}
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	gen := opts.RunIDGenerator
	if gen == nil {
		gen = harness.UUIDv7Generator{}
	}
	runID := gen.Generate()
	started := clock()

	layer := val.New(platform,
		val.WithLogger(logger),
		val.WithDelivery(cfg.DeliveryMode()),
		val.WithBudget(cfg.Budget()),
	)
	runner := harness.NewRunner(layer,
		harness.WithLogger(logger),
		harness.WithClock(clock),
		harness.WithObserver(func(rec harness.Record) {
			out.VerboseLog("%s: %s", rec.Identity.Key(), rec.Result)
		}),
	)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("run starting", "run_id", runID, "tests", len(cases), "delivery", cfg.Delivery)
	records, runErr := runner.Run(ctx, cases)

	rep := report.New(runID, platform.Name(), platform.Version(), records)
	if signer != nil {
		if err := report.Sign(rep, signer, clock()); err != nil {
			return out.fail(ExitCommandError, CodeKey, "failed to sign report", err)
		}
	} else if err := rep.Seal(); err != nil {
		return WrapExitError(ExitCommandError, "failed to seal report", err)
	}

	if cfg.DBPath != "" {
		if err := recordRun(ctx, cfg.DBPath, rep, started); err != nil {
			return out.fail(ExitCommandError, CodeStore, "failed to record run", err)
		}
		logger.Infow("run recorded", "run_id", runID, "db", cfg.DBPath)
	}

	if opts.Out != "" {
		if err := writeReportFile(opts.Out, rep); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
	}
	if err := out.Report(rep); err != nil {
		return err
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "run interrupted", runErr)
	}
	if !rep.Summary.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("compliance run failed: %d failed, %d indeterminate",
			rep.Summary.Fail, rep.Summary.Indeterminate))
	}
	return nil
}

func recordRun(ctx context.Context, path string, rep *report.Report, started time.Time) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	// The run itself may have been interrupted; the partial report is
	// still recorded.
	return st.WriteReport(context.WithoutCancel(ctx), rep, started)
}

func writeReportFile(path string, rep *report.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteJSON(f, rep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
