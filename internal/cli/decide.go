package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/gatewright/internal/wf"
)

// DecideOptions holds flags for the decide command.
type DecideOptions struct {
	*RootOptions
	Reason string
}

// NewDecideCommand creates the decide command.
func NewDecideCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecideOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decide <run-id> <finding-id> <decision>",
		Short: "Record a decision against a pending finding",
		Long: `Record a human decision against a pending finding.

Decisions: fix_now, document_in_pr, create_issue, document_in_commit,
ignore, ignored_with_reason. The last one requires --reason.

Examples:
  gatewright decide run-1 3f2a... fix_now --db ./gatewright.db
  gatewright decide run-1 3f2a... ignored_with_reason --reason "test fixture" --db ./gatewright.db`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStore, err := openEngine(opts.RootOptions)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.SubmitFindingDecision(cmd.Context(),
				args[0], args[1], wf.FindingDecision(args[2]), opts.Reason)
			if err != nil {
				return workflowExit(err)
			}
			return emitView(opts.RootOptions, cmd, view)
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason (required for ignored_with_reason)")

	return cmd
}

// NewResolveCommand creates the resolve command for drift records.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <run-id> <drift-id> <resolution>",
		Short: "Record a resolution against a pending drift record",
		Long: `Record a human resolution against a pending drift record.

Resolutions: docs_are_right, code_is_right, both_stale.

Example:
  gatewright resolve run-1 8c1d... docs_are_right --db ./gatewright.db`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.SubmitDriftResolution(cmd.Context(),
				args[0], args[1], wf.DriftResolution(args[2]))
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}
	return cmd
}
