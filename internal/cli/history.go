package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tbsa/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	Test     string
}

// HistoryEntry is one line of test history.
type HistoryEntry struct {
	RunID      string `json:"run_id"`
	Result     string `json:"result"`
	Code       string `json:"code"`
	Checkpoint uint32 `json:"checkpoint,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded compliance runs",
		Long: `Show compliance runs recorded with run --db.

Without arguments, lists runs newest first. With a run ID, prints that run's
stored report. With --test, lists one test's results across runs.

Examples:
  tbsa history --db runs.db
  tbsa history --db runs.db 01925c4e-7d6b-7c3a-9b1e-3f2a6c8d9e0f
  tbsa history --db runs.db --test p001`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database (default $TBSA_DB)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of rows (0 for all)")
	cmd.Flags().StringVar(&opts.Test, "test", "", "show one test's results across runs (e.g. d007)")

	return cmd
}

// openExisting opens a results database that must already exist.
func openExisting(path string) (*store.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("no database: pass --db or set TBSA_DB")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %s", path)
	}
	return store.Open(path)
}

func showHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	path := opts.Database
	if path == "" {
		path = opts.settings().DBPath
	}
	st, err := openExisting(path)
	if err != nil {
		return out.fail(ExitCommandError, CodeStore, "failed to open database", err)
	}
	defer st.Close()

	switch {
	case len(args) == 1:
		rep, err := st.ReadReport(ctx, args[0])
		if err != nil {
			return out.fail(ExitCommandError, CodeStore, "failed to read run", err)
		}
		return out.Report(rep)

	case opts.Test != "":
		lines, runIDs, err := st.TestHistory(ctx, opts.Test, opts.Limit)
		if err != nil {
			return out.fail(ExitCommandError, CodeStore, "failed to read test history", err)
		}
		entries := make([]HistoryEntry, len(lines))
		for i, l := range lines {
			entries[i] = HistoryEntry{RunID: runIDs[i], Result: l.Result, Code: l.Code, Checkpoint: l.Checkpoint}
		}
		if opts.Format == "json" {
			return out.Success(entries)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tRESULT\tCODE\tCHECKPOINT")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.RunID, e.Result, e.Code, e.Checkpoint)
		}
		return tw.Flush()

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return out.fail(ExitCommandError, CodeStore, "failed to list runs", err)
		}
		if opts.Format == "json" {
			return out.Success(runs)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tRUN\tTARGET\tSTARTED\tPASS\tFAIL\tSKIP\tINDET\tSIGNED")
		for _, r := range runs {
			signed := "no"
			if r.Token != "" {
				signed = "yes"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				r.Seq, r.ID, r.Target, r.StartedAt, r.Pass, r.Fail, r.Skip, r.Indeterminate, signed)
		}
		return tw.Flush()
	}
}
