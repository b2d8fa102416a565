package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/gatewright/internal/wf"
)

// NewPlanCommand creates the plan command group.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Propose and approve implementation plans",
	}
	cmd.AddCommand(newPlanProposeCommand(rootOpts))
	cmd.AddCommand(newPlanApproveCommand(rootOpts))
	return cmd
}

// planFile is the YAML shape accepted by plan propose.
type planFile struct {
	Components []struct {
		Name      string   `yaml:"name"`
		Purpose   string   `yaml:"purpose"`
		DependsOn []string `yaml:"depends_on"`
	} `yaml:"components"`
}

func newPlanProposeCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "propose <run-id>",
		Short: "Propose a plan version from a YAML component list",
		Long: `Propose a new plan version during the planning phase. Proposing again
supersedes the previous version; a granted approval does not carry over.

Plan file shape:

  components:
    - name: schema
      purpose: storage migration
    - name: api
      purpose: endpoint changes
      depends_on: [schema]

Example:
  gatewright plan propose run-1 --file plan.yaml --db ./gatewright.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read plan file", err)
			}
			var pf planFile
			if err := yaml.Unmarshal(data, &pf); err != nil {
				return WrapExitError(ExitCommandError, "failed to parse plan file", err)
			}

			components := make([]wf.ComponentSpec, len(pf.Components))
			for i, c := range pf.Components {
				components[i] = wf.ComponentSpec{
					Name:      c.Name,
					Purpose:   c.Purpose,
					DependsOn: c.DependsOn,
				}
			}

			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.ProposePlan(cmd.Context(), args[0], components)
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML plan file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newPlanApproveCommand(rootOpts *RootOptions) *cobra.Command {
	var version int
	var notes string

	cmd := &cobra.Command{
		Use:   "approve <run-id>",
		Short: "Approve the current plan version",
		Long: `Approve a plan by version number. The version must be the one the
approver was shown; if the plan has since been re-proposed, the
approval fails with STALE_PLAN and the current plan must be reviewed
instead.

Example:
  gatewright plan approve run-1 --version 2 --notes "lgtm" --db ./gatewright.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if version < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid plan version %d", version))
			}

			eng, closeStore, err := openEngine(rootOpts)
			if err != nil {
				return err
			}
			defer closeStore()

			view, err := eng.ApprovePlan(cmd.Context(), args[0], version, notes)
			if err != nil {
				return workflowExit(err)
			}
			return emitView(rootOpts, cmd, view)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "plan version being approved (required)")
	_ = cmd.MarkFlagRequired("version")
	cmd.Flags().StringVar(&notes, "notes", "", "approval notes")

	return cmd
}
