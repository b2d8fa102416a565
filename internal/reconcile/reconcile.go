// Package reconcile implements the documentation/code-reality
// reconciliation check.
//
// Reconciliation is a pure function from documentation claims and a
// code inventory to drift candidates. It never guesses which side is
// authoritative: every candidate starts with a Pending resolution and
// waits for an external decision.
package reconcile

import (
	"fmt"

	"github.com/roach88/gatewright/internal/wf"
)

// Claim is one documentation claim: a referenced symbol and the
// property the documentation says it has (e.g. "exists", a signature).
type Claim struct {
	ClaimRef string
	Symbol   string
	Expected string
}

// Inventory maps symbol names to their observed property. A symbol
// missing from the map is treated as absent from the codebase.
type Inventory map[string]string

// Reconcile compares every claim against the inventory and returns a
// drift candidate for each mismatch. Claims whose symbol is missing
// produce a candidate with Observed set to wf.ObservedAbsent. Matching
// claims produce nothing.
//
// The result preserves claim order, so the same inputs always produce
// the same candidate slice.
func Reconcile(claims []Claim, inv Inventory) ([]wf.DriftRecord, error) {
	var drifts []wf.DriftRecord
	for i, claim := range claims {
		if claim.ClaimRef == "" {
			return nil, fmt.Errorf("claim %d: claim_ref is required", i)
		}

		observed, present := inv[claim.Symbol]
		if present && observed == claim.Expected {
			continue
		}
		if !present {
			observed = wf.ObservedAbsent
		}

		id, err := wf.DriftFingerprint(claim.ClaimRef)
		if err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", claim.ClaimRef, err)
		}
		drifts = append(drifts, wf.DriftRecord{
			ID:         id,
			ClaimRef:   claim.ClaimRef,
			Expected:   claim.Expected,
			Observed:   observed,
			Resolution: wf.ResolutionPending,
		})
	}
	return drifts, nil
}
