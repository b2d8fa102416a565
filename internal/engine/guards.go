package engine

import (
	"fmt"

	"github.com/roach88/gatewright/internal/wf"
)

// checkTransition validates that a run in the state described by view
// may transition to the target phase. A nil return means the guard
// holds. The view is never mutated.
//
// Allowed edges are the canonical forward progression plus the single
// rework edge final_checklist -> implementation, taken only when a
// recorded checklist item failed.
func checkTransition(view *wf.RunView, to wf.Phase) error {
	if view.Phase.IsTerminal() {
		return NewRunTerminal(view.ID, view.Phase)
	}
	if to == wf.PhaseAborted {
		return NewGuardViolation(view.ID, view.Phase, "aborting requires the abort operation, not a transition")
	}

	if view.Phase == wf.PhaseFinalChecklist && to == wf.PhaseImplementation {
		if !wf.AnyCheckFailed(view.Checklist) {
			return NewGuardViolation(view.ID, view.Phase,
				"returning to implementation requires a failed checklist item")
		}
		return nil
	}

	next, ok := view.Phase.Next()
	if !ok || to != next {
		return NewGuardViolation(view.ID, view.Phase,
			fmt.Sprintf("no transition from %s to %s", view.Phase, to))
	}

	switch to {
	case wf.PhaseIssueDiscovery:
		if n := view.PendingDrifts(); n > 0 {
			return NewGuardViolation(view.ID, view.Phase,
				fmt.Sprintf("%d drift record(s) still pending resolution", n))
		}
		if n := view.PendingFindings(); n > 0 {
			return NewGuardViolation(view.ID, view.Phase,
				fmt.Sprintf("%d finding(s) still pending decision", n))
		}

	case wf.PhasePlanning:
		if n := view.PendingFindings(); n > 0 {
			return NewGuardViolation(view.ID, view.Phase,
				fmt.Sprintf("%d finding(s) still pending decision", n))
		}
		if n := view.PendingDrifts(); n > 0 {
			return NewGuardViolation(view.ID, view.Phase,
				fmt.Sprintf("%d drift record(s) still pending resolution", n))
		}

	case wf.PhaseImplementation:
		plan := view.CurrentPlan()
		if plan == nil {
			return NewGuardViolation(view.ID, view.Phase, "no plan has been proposed")
		}
		if !plan.Approved {
			return NewGuardViolation(view.ID, view.Phase,
				fmt.Sprintf("plan version %d is not approved", plan.Version))
		}

	case wf.PhaseVerification:
		plan := view.CurrentPlan()
		if plan == nil || !plan.AllDelivered() {
			return NewGuardViolation(view.ID, view.Phase, "not all planned components are delivered")
		}

	case wf.PhaseFinalChecklist:
		if !wf.ChecksPass(view.Verifications) {
			return NewGuardViolation(view.ID, view.Phase,
				"verification requires at least one recorded result and no failures")
		}

	case wf.PhaseCompleted:
		if !wf.ChecksPass(view.Checklist) {
			return NewGuardViolation(view.ID, view.Phase,
				"completion requires at least one recorded checklist item and no failures")
		}
	}

	return nil
}
