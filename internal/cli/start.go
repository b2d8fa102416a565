package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/gatewright/internal/wf"
)

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <subject-ref>",
		Short: "Start a new workflow run",
		Long: `Start a new workflow run for a proposed change.

The subject reference names the change under review (a PR, a ticket, a
change request). The run begins in the doc_discovery phase.

Example:
  gatewright start PR-42 --db ./gatewright.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.StartRun(cmd.Context(), args[0])
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}
	return cmd
}

// emitView writes a run view in the configured output format.
func emitView(rootOpts *RootOptions, cmd *cobra.Command, view *wf.RunView) error {
	f := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}
	if f.Format == "json" {
		return f.Success(view)
	}
	return f.Success(renderView(view))
}
