package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/gatewright/internal/wf"
)

// Fold materializes a run view by applying ledger entries in order.
//
// Fold is the only way a view is ever produced. It is strict: any entry
// that cannot be applied to the state built so far means the ledger was
// written by a buggy or tampered writer, and the whole fold fails with
// REPLAY_CORRUPTION rather than guessing at a partial state.
//
// Checks enforced per entry:
//   - seq values are contiguous starting at 1
//   - the first entry is run_started and no later entry is
//   - every entry kind is known and its payload decodes
//   - decisions and deliveries reference targets that exist
//   - transitions depart from the phase the fold has actually reached
func Fold(runID string, entries []wf.LedgerEntry) (*wf.RunView, error) {
	if len(entries) == 0 {
		return nil, NewRunNotFound(runID)
	}

	view := &wf.RunView{ID: runID}

	for i, entry := range entries {
		wantSeq := int64(i + 1)
		if entry.Seq != wantSeq {
			return nil, NewReplayCorruption(runID, entry.Seq,
				fmt.Sprintf("sequence gap: expected seq %d, found %d", wantSeq, entry.Seq))
		}
		if entry.RunID != runID {
			return nil, NewReplayCorruption(runID, entry.Seq,
				fmt.Sprintf("entry belongs to run %q", entry.RunID))
		}
		if i == 0 && entry.Kind != wf.KindRunStarted {
			return nil, NewReplayCorruption(runID, entry.Seq,
				fmt.Sprintf("first entry must be %s, found %s", wf.KindRunStarted, entry.Kind))
		}
		if i > 0 && entry.Kind == wf.KindRunStarted {
			return nil, NewReplayCorruption(runID, entry.Seq, "duplicate run_started entry")
		}

		if err := applyEntry(view, entry); err != nil {
			return nil, err
		}
		view.LastSeq = entry.Seq
	}

	return view, nil
}

func applyEntry(view *wf.RunView, entry wf.LedgerEntry) error {
	switch entry.Kind {
	case wf.KindRunStarted:
		var p wf.RunStartedPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		view.SubjectRef = p.SubjectRef
		view.CreatedAt = entry.Timestamp
		view.Phase = wf.PhaseDocDiscovery
		return nil

	case wf.KindPhaseTransition:
		var p wf.PhaseTransitionPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		if p.From != view.Phase {
			return NewReplayCorruption(view.ID, entry.Seq,
				fmt.Sprintf("transition from %s recorded while run is in %s", p.From, view.Phase))
		}
		view.Phase = p.To
		if p.To == wf.PhaseAborted {
			view.AbortReason = p.Reason
			view.AbortedFrom = p.From
		}
		// Returning to implementation restarts the delivery cycle: the
		// prior round's deliveries and check results no longer describe
		// the code that will ship.
		if p.To == wf.PhaseImplementation && p.From == wf.PhaseFinalChecklist {
			if plan := view.CurrentPlan(); plan != nil {
				for i := range plan.Components {
					plan.Components[i].Delivered = false
				}
			}
			view.Verifications = nil
			view.Checklist = nil
		}
		return nil

	case wf.KindFindingRegistered:
		var p wf.FindingRegisteredPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		if view.FindingByID(p.Finding.ID) != nil {
			return NewReplayCorruption(view.ID, entry.Seq,
				fmt.Sprintf("finding %s registered twice", p.Finding.ID))
		}
		view.Findings = append(view.Findings, p.Finding)
		return nil

	case wf.KindDriftRegistered:
		var p wf.DriftRegisteredPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		if view.DriftByID(p.Drift.ID) != nil {
			return NewReplayCorruption(view.ID, entry.Seq,
				fmt.Sprintf("drift record %s registered twice", p.Drift.ID))
		}
		view.Drifts = append(view.Drifts, p.Drift)
		return nil

	case wf.KindFindingDecision:
		var p wf.FindingDecisionPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		f := view.FindingByID(p.FindingID)
		if f == nil {
			return NewReplayCorruption(view.ID, entry.Seq,
				fmt.Sprintf("decision references unknown finding %s", p.FindingID))
		}
		f.Decision = p.Decision
		f.DecisionReason = p.Reason
		return nil

	case wf.KindDriftResolution:
		var p wf.DriftResolutionPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		d := view.DriftByID(p.DriftID)
		if d == nil {
			return NewReplayCorruption(view.ID, entry.Seq,
				fmt.Sprintf("resolution references unknown drift record %s", p.DriftID))
		}
		d.Resolution = p.Resolution
		return nil

	case wf.KindPlanProposed:
		var p wf.PlanProposedPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		if want := len(view.Plans) + 1; p.Version != want {
			return NewReplayCorruption(view.ID, entry.Seq,
				fmt.Sprintf("plan version %d proposed, expected %d", p.Version, want))
		}
		view.Plans = append(view.Plans, wf.Plan{
			Version:    p.Version,
			Components: p.Components,
		})
		return nil

	case wf.KindPlanApproval:
		var p wf.PlanApprovalPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		plan := view.CurrentPlan()
		if plan == nil {
			return NewReplayCorruption(view.ID, entry.Seq, "approval recorded with no plan proposed")
		}
		if plan.Version != p.Version {
			return NewReplayCorruption(view.ID, entry.Seq,
				fmt.Sprintf("approval for plan version %d, current is %d", p.Version, plan.Version))
		}
		plan.Approved = true
		plan.ApprovalNotes = p.Notes
		return nil

	case wf.KindComponentDelivered:
		var p wf.ComponentDeliveredPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		plan := view.CurrentPlan()
		if plan == nil {
			return NewReplayCorruption(view.ID, entry.Seq, "delivery recorded with no plan proposed")
		}
		comp, ok := plan.Component(p.Component)
		if !ok {
			return NewReplayCorruption(view.ID, entry.Seq,
				fmt.Sprintf("delivery references unknown component %q", p.Component))
		}
		comp.Delivered = true
		return nil

	case wf.KindVerificationResult:
		var p wf.VerificationResultPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		view.Verifications = upsertResult(view.Verifications, wf.CheckResult{Name: p.Name, Pass: p.Pass})
		return nil

	case wf.KindChecklistResult:
		var p wf.ChecklistResultPayload
		if err := decodePayload(view.ID, entry, &p); err != nil {
			return err
		}
		view.Checklist = upsertResult(view.Checklist, wf.CheckResult{Name: p.Item, Pass: p.Pass})
		return nil
	}

	return NewReplayCorruption(view.ID, entry.Seq, fmt.Sprintf("unknown entry kind %q", entry.Kind))
}

func decodePayload(runID string, entry wf.LedgerEntry, out any) error {
	if err := json.Unmarshal(entry.Payload, out); err != nil {
		return NewReplayCorruption(runID, entry.Seq,
			fmt.Sprintf("undecodable %s payload: %v", entry.Kind, err))
	}
	return nil
}

// upsertResult replaces the result with the same name, preserving the
// position of the first recording so fold output stays order-stable.
func upsertResult(results []wf.CheckResult, r wf.CheckResult) []wf.CheckResult {
	for i := range results {
		if results[i].Name == r.Name {
			results[i] = r
			return results
		}
	}
	return append(results, r)
}

// CompareViews folds the same entries twice and compares the canonical
// serialization of both views byte for byte. A mismatch means the fold
// itself is nondeterministic, which replay safety rules out.
func CompareViews(runID string, entries []wf.LedgerEntry) error {
	first, err := Fold(runID, entries)
	if err != nil {
		return err
	}
	second, err := Fold(runID, entries)
	if err != nil {
		return err
	}

	a, err := wf.MarshalCanonicalValue(first)
	if err != nil {
		return NewReplayCorruption(runID, first.LastSeq, fmt.Sprintf("serialize view: %v", err))
	}
	b, err := wf.MarshalCanonicalValue(second)
	if err != nil {
		return NewReplayCorruption(runID, second.LastSeq, fmt.Sprintf("serialize view: %v", err))
	}
	if !bytes.Equal(a, b) {
		return NewReplayCorruption(runID, first.LastSeq, "replayed views differ")
	}
	return nil
}
