package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gatewright/internal/classify"
	"github.com/roach88/gatewright/internal/rules"
	"github.com/roach88/gatewright/internal/wf"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	RulesFile string
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <run-id> <file>...",
		Short: "Scan artifacts and register findings",
		Long: `Scan artifact files against a classifier rule set and register the
resulting findings on the run.

Rules come from the built-in set unless --rules points at a CUE rule
file. A file that cannot be read registers a single low-severity
analysis-incomplete finding instead of failing the scan.

Registration is idempotent: re-scanning the same artifacts registers no
new findings.

Examples:
  gatewright scan run-1 app/views.py --db ./gatewright.db
  gatewright scan run-1 src/*.py --rules ./rules.cue --db ./gatewright.db`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().StringVar(&opts.RulesFile, "rules", "", "CUE rule file (default: built-in rules)")

	return cmd
}

func runScan(opts *ScanOptions, cmd *cobra.Command, runID string, paths []string) error {
	ruleSet, err := loadRuleSet(opts.RulesFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}

	var artifacts []classify.Artifact
	var findings []wf.Finding
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			// The artifact stays in the run as a degraded finding
			// rather than aborting the whole scan.
			id, fpErr := wf.FindingFingerprint(path, 0, wf.CategoryAnalysisIncomplete)
			if fpErr != nil {
				return WrapExitError(ExitCommandError, "failed to fingerprint artifact", fpErr)
			}
			findings = append(findings, wf.Finding{
				ID:          id,
				LocationRef: path,
				Line:        0,
				Category:    wf.CategoryAnalysisIncomplete,
				Severity:    wf.SeverityLow,
				Description: fmt.Sprintf("artifact could not be read: %v", err),
				Decision:    wf.DecisionPending,
			})
			continue
		}
		artifacts = append(artifacts, classify.Artifact{
			LocationRef: path,
			Text:        string(data),
		})
	}

	scanned, err := ruleSet.ScanArtifacts(cmd.Context(), artifacts, classify.DefaultScanConcurrency)
	if err != nil {
		return WrapExitError(ExitCommandError, "scan failed", err)
	}
	findings = append(findings, scanned...)

	eng, closeStore, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore()

	newIDs, err := eng.RegisterFindings(cmd.Context(), runID, findings)
	if err != nil {
		return workflowExit(err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if f.Format == "json" {
		if newIDs == nil {
			newIDs = []string{}
		}
		return f.Success(map[string]any{
			"scanned":         len(findings),
			"new_finding_ids": newIDs,
		})
	}
	return f.Success(fmt.Sprintf("scanned %d finding(s), %d new", len(findings), len(newIDs)))
}

func loadRuleSet(path string) (*classify.RuleSet, error) {
	if path == "" {
		return rules.DefaultRuleSet()
	}
	return rules.LoadRulesFile(path)
}
