package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <run-id>",
		Short: "Show the materialized state of a run",
		Long: `Fold the run's ledger and show the materialized view: phase, status,
findings, drift, plan versions and check results.

Example:
  gatewright state run-1 --db ./gatewright.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.GetState(cmd.Context(), args[0])
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}
	return cmd
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List all runs in the ledger",
		Long: `List the IDs of all runs in the ledger, in start order.

Example:
  gatewright runs --db ./gatewright.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			runs, err := eng.ListRuns(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list runs", err)
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if f.Format == "json" {
				if runs == nil {
					runs = []string{}
				}
				return f.Success(map[string]any{"runs": runs})
			}
			if len(runs) == 0 {
				return f.Success("no runs")
			}
			return f.Success(fmt.Sprintf("%d run(s):\n  %s", len(runs), strings.Join(runs, "\n  ")))
		},
	}
	return cmd
}
