package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/gatewright/internal/wf"
)

// The approval gate validates human decisions before they reach the
// ledger. Nothing here mutates the view; a validated decision is
// appended by the engine and takes effect on the next fold.

// validateFindingDecision checks a decision submission against a run
// view. Rejections are INVALID_DECISION errors and leave no trace in
// the ledger.
func validateFindingDecision(view *wf.RunView, findingID string, decision wf.FindingDecision, reason string) error {
	if !slices.Contains(wf.SubmittableFindingDecisions, decision) {
		return NewInvalidDecision(view.ID,
			fmt.Sprintf("decision %q is not in the allowed set", decision))
	}
	f := view.FindingByID(findingID)
	if f == nil {
		return NewInvalidDecision(view.ID,
			fmt.Sprintf("no finding with id %s", findingID))
	}
	if f.Decision != wf.DecisionPending {
		return NewInvalidDecision(view.ID,
			fmt.Sprintf("finding %s already decided as %s", findingID, f.Decision))
	}
	if decision == wf.DecisionIgnoredWithReason && reason == "" {
		return NewInvalidDecision(view.ID, "ignored_with_reason requires a non-empty reason")
	}
	return nil
}

// validateDriftResolution checks a resolution submission against a run
// view.
func validateDriftResolution(view *wf.RunView, driftID string, resolution wf.DriftResolution) error {
	if !slices.Contains(wf.SubmittableDriftResolutions, resolution) {
		return NewInvalidDecision(view.ID,
			fmt.Sprintf("resolution %q is not in the allowed set", resolution))
	}
	d := view.DriftByID(driftID)
	if d == nil {
		return NewInvalidDecision(view.ID,
			fmt.Sprintf("no drift record with id %s", driftID))
	}
	if d.Resolution != wf.ResolutionPending {
		return NewInvalidDecision(view.ID,
			fmt.Sprintf("drift record %s already resolved as %s", driftID, d.Resolution))
	}
	return nil
}

// validatePlanApproval checks an approval against the run's current
// plan. Approving a version that was since superseded is the one case
// that gets its own error code: the approver was looking at a plan that
// no longer exists, and the caller must re-present the current one.
func validatePlanApproval(view *wf.RunView, version int) error {
	plan := view.CurrentPlan()
	if plan == nil {
		return NewInvalidDecision(view.ID, "no plan has been proposed")
	}
	if version != plan.Version {
		return NewStalePlan(view.ID, version, plan.Version)
	}
	if plan.Approved {
		return NewInvalidDecision(view.ID,
			fmt.Sprintf("plan version %d is already approved", plan.Version))
	}
	return nil
}

// validatePlanComponents checks a proposed component list: at least one
// component, unique names, and dependencies that name other components
// in the same plan.
func validatePlanComponents(runID string, components []wf.ComponentSpec) error {
	if len(components) == 0 {
		return NewInvalidDecision(runID, "a plan requires at least one component")
	}
	names := make(map[string]bool, len(components))
	for _, c := range components {
		if c.Name == "" {
			return NewInvalidDecision(runID, "component name must not be empty")
		}
		if names[c.Name] {
			return NewInvalidDecision(runID,
				fmt.Sprintf("duplicate component name %q", c.Name))
		}
		names[c.Name] = true
	}
	for _, c := range components {
		for _, dep := range c.DependsOn {
			if dep == c.Name {
				return NewInvalidDecision(runID,
					fmt.Sprintf("component %q depends on itself", c.Name))
			}
			if !names[dep] {
				return NewInvalidDecision(runID,
					fmt.Sprintf("component %q depends on unknown component %q", c.Name, dep))
			}
		}
	}
	return nil
}
