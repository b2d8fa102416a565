package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/gatewright/internal/engine"
	"github.com/roach88/gatewright/internal/store"
	"github.com/roach88/gatewright/internal/wf"
)

// openEngine opens the ledger database and wires an engine over it.
// The caller must invoke the returned close function.
func openEngine(opts *RootOptions) (*engine.Engine, func(), error) {
	if opts.Database == "" {
		return nil, nil, NewExitError(ExitCommandError, "no database: pass --db or set GATEWRIGHT_DB")
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var engOpts []engine.Option
	if opts.RunIDGenerator != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}
	eng := engine.New(st, engOpts...)
	return eng, func() { _ = st.Close() }, nil
}

// workflowExit converts an engine error into an ExitError: workflow
// rejections exit 1, everything else is a command error.
func workflowExit(err error) error {
	var we *engine.WorkflowError
	if errors.As(err, &we) {
		return WrapExitError(ExitFailure, string(we.Code), err)
	}
	return WrapExitError(ExitCommandError, "operation failed", err)
}

// renderView formats a run view for text output.
func renderView(view *wf.RunView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:     %s\n", view.ID)
	fmt.Fprintf(&b, "Subject: %s\n", view.SubjectRef)
	fmt.Fprintf(&b, "Phase:   %s\n", view.Phase)
	fmt.Fprintf(&b, "Status:  %s\n", view.Status())
	if view.Phase == wf.PhaseAborted {
		fmt.Fprintf(&b, "Aborted: from %s (%s)\n", view.AbortedFrom, view.AbortReason)
	}

	if len(view.Findings) > 0 {
		fmt.Fprintf(&b, "Findings (%d, %d pending):\n", len(view.Findings), view.PendingFindings())
		for _, f := range view.Findings {
			fmt.Fprintf(&b, "  [%s] %s %s:%d %s -> %s\n",
				f.Severity, shortID(f.ID), f.LocationRef, f.Line, f.Category, f.Decision)
		}
	}
	if len(view.Drifts) > 0 {
		fmt.Fprintf(&b, "Drift (%d, %d pending):\n", len(view.Drifts), view.PendingDrifts())
		for _, d := range view.Drifts {
			fmt.Fprintf(&b, "  %s %s expected=%q observed=%q -> %s\n",
				shortID(d.ID), d.ClaimRef, d.Expected, d.Observed, d.Resolution)
		}
	}
	if plan := view.CurrentPlan(); plan != nil {
		approved := "unapproved"
		if plan.Approved {
			approved = "approved"
		}
		fmt.Fprintf(&b, "Plan v%d (%s):\n", plan.Version, approved)
		for _, c := range plan.Components {
			mark := " "
			if c.Delivered {
				mark = "x"
			}
			fmt.Fprintf(&b, "  [%s] %s", mark, c.Name)
			if len(c.DependsOn) > 0 {
				fmt.Fprintf(&b, " (after %s)", strings.Join(c.DependsOn, ", "))
			}
			fmt.Fprintln(&b)
		}
	}
	appendChecks(&b, "Verifications", view.Verifications)
	appendChecks(&b, "Checklist", view.Checklist)

	return strings.TrimRight(b.String(), "\n")
}

func appendChecks(b *strings.Builder, label string, results []wf.CheckResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, r := range results {
		outcome := "FAIL"
		if r.Pass {
			outcome = "PASS"
		}
		fmt.Fprintf(b, "  %s %s\n", outcome, r.Name)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
