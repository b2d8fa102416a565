package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/gatewright/internal/reconcile"
	"github.com/roach88/gatewright/internal/rules"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	ClaimsFile    string
	InventoryFile string
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile <run-id>",
		Short: "Reconcile documentation claims against the code inventory",
		Long: `Compare documentation claims against the observed code symbol
inventory and register any mismatches as drift records on the run.

Claims come from a CUE claim file; the inventory is a YAML map of
symbol names to observed states. A claimed symbol missing from the
inventory entirely is recorded with observed state "Absent".

Example:
  gatewright reconcile run-1 --claims docs/claims.cue --inventory inventory.yaml --db ./gatewright.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.ClaimsFile, "claims", "", "CUE claim file (required)")
	_ = cmd.MarkFlagRequired("claims")
	cmd.Flags().StringVar(&opts.InventoryFile, "inventory", "", "YAML symbol inventory (required)")
	_ = cmd.MarkFlagRequired("inventory")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command, runID string) error {
	claims, err := rules.LoadClaimsFile(opts.ClaimsFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load claims", err)
	}
	inventory, err := rules.LoadInventoryFile(opts.InventoryFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load inventory", err)
	}

	drifts, err := reconcile.Reconcile(claims, inventory)
	if err != nil {
		return WrapExitError(ExitCommandError, "reconcile failed", err)
	}

	eng, closeStore, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore()

	newIDs, err := eng.RegisterDrift(cmd.Context(), runID, drifts)
	if err != nil {
		return workflowExit(err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if f.Format == "json" {
		if newIDs == nil {
			newIDs = []string{}
		}
		return f.Success(map[string]any{
			"claims":        len(claims),
			"drift":         len(drifts),
			"new_drift_ids": newIDs,
		})
	}
	return f.Success(fmt.Sprintf("checked %d claim(s): %d drift record(s), %d new",
		len(claims), len(drifts), len(newIDs)))
}
