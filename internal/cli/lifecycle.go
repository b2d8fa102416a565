package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gatewright/internal/wf"
)

// NewTransitionCommand creates the transition command.
func NewTransitionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transition <run-id> <phase>",
		Short: "Move a run to the next phase",
		Long: `Move a run to the target phase if that phase's guard holds.

Phases advance in order: doc_discovery, issue_discovery, planning,
implementation, verification, final_checklist, completed. The one
backward edge is final_checklist to implementation, taken when a
checklist item failed. A rejected transition leaves the run unchanged.

Example:
  gatewright transition run-1 planning --db ./gatewright.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := wf.ParsePhase(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid phase", err)
			}

			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.Transition(cmd.Context(), args[0], phase)
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}
	return cmd
}

// NewAbortCommand creates the abort command.
func NewAbortCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abort <run-id>",
		Short: "Abort a run",
		Long: `Abort a run from any non-terminal phase. The originating phase and
the reason are preserved on the ledger.

Example:
  gatewright abort run-1 --reason "requirements changed" --db ./gatewright.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.Abort(cmd.Context(), args[0], reason)
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "abort reason")

	return cmd
}

// NewDeliverCommand creates the deliver command.
func NewDeliverCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliver <run-id> <component>",
		Short: "Mark a planned component as delivered",
		Long: `Mark a planned component as delivered during implementation. A
component's dependencies must be delivered first. Delivering an
already-delivered component is a no-op.

Example:
  gatewright deliver run-1 schema --db ./gatewright.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.MarkDelivered(cmd.Context(), args[0], args[1])
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}
	return cmd
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <run-id> <name> <pass|fail>",
		Short: "Record a verification result",
		Long: `Record one verification outcome during the verification phase.
Recording the same name again replaces the earlier outcome.

Examples:
  gatewright verify run-1 tests pass --db ./gatewright.db
  gatewright verify run-1 lint fail --db ./gatewright.db`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := parseOutcome(args[2])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid outcome", err)
			}

			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.RecordVerification(cmd.Context(), args[0], args[1], pass)
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}
	return cmd
}

// NewChecklistCommand creates the checklist command.
func NewChecklistCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checklist <run-id> <item> <pass|fail>",
		Short: "Record a final checklist item",
		Long: `Record one checklist outcome during the final checklist phase. A
failed item unlocks the rework transition back to implementation.

Example:
  gatewright checklist run-1 "docs updated" pass --db ./gatewright.db`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := parseOutcome(args[2])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid outcome", err)
			}

			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.RecordChecklist(cmd.Context(), args[0], args[1], pass)
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}
	return cmd
}

func parseOutcome(s string) (bool, error) {
	switch s {
	case "pass":
		return true, nil
	case "fail":
		return false, nil
	}
	return false, fmt.Errorf("outcome must be pass or fail, got %q", s)
}
