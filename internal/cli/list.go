package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/tbsa/internal/harness"
	"github.com/roach88/tbsa/internal/testpool"
)

// CatalogEntry describes one built-in test.
type CatalogEntry struct {
	Test   string `json:"test"`
	Group  string `json:"group"`
	ID     uint32 `json:"id"`
	RefTag string `json:"ref_tag"`
	Title  string `json:"title"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the built-in compliance tests",
		Long: `List the built-in compliance tests in run order.

Examples:
  tbsa list
  tbsa list --group DEBUG
  tbsa list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCatalog(rootOpts, group, cmd)
		},
	}

	cmd.Flags().StringVar(&group, "group", "", "list only this test group")

	return cmd
}

func listCatalog(opts *RootOptions, group string, cmd *cobra.Command) error {
	var filter harness.Filter
	if group != "" {
		g, err := harness.ParseGroup(group)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid selection", err)
		}
		filter.Group = g
	}

	reg := harness.NewRegistry()
	if err := testpool.Register(reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to build test catalog", err)
	}

	entries := make([]CatalogEntry, 0, reg.Len())
	for _, tc := range reg.Select(filter) {
		id := tc.Identity()
		entries = append(entries, CatalogEntry{
			Test:   id.Key(),
			Group:  id.Group.String(),
			ID:     id.ID,
			RefTag: id.RefTag,
			Title:  id.Title,
		})
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(entries)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST\tGROUP\tUT\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Test, e.Group, e.RefTag, e.Title)
	}
	return tw.Flush()
}
