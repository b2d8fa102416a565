package wf

import "fmt"

// Phase identifies one stage of the change workflow.
type Phase string

const (
	PhaseDocDiscovery   Phase = "doc_discovery"
	PhaseIssueDiscovery Phase = "issue_discovery"
	PhasePlanning       Phase = "planning"
	PhaseImplementation Phase = "implementation"
	PhaseVerification   Phase = "verification"
	PhaseFinalChecklist Phase = "final_checklist"
	PhaseCompleted      Phase = "completed"
	PhaseAborted        Phase = "aborted"
)

// PhaseOrder is the canonical forward progression of a run.
// Aborted is reachable from any non-terminal phase and is not part of
// the forward order. FinalChecklist may additionally transition back to
// Implementation when a checklist item fails.
var PhaseOrder = []Phase{
	PhaseDocDiscovery,
	PhaseIssueDiscovery,
	PhasePlanning,
	PhaseImplementation,
	PhaseVerification,
	PhaseFinalChecklist,
	PhaseCompleted,
}

// ParsePhase converts a string to a Phase, accepting only known values.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	switch p {
	case PhaseDocDiscovery, PhaseIssueDiscovery, PhasePlanning,
		PhaseImplementation, PhaseVerification, PhaseFinalChecklist,
		PhaseCompleted, PhaseAborted:
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// IsTerminal reports whether no further transitions are allowed.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

// Next returns the canonical successor phase and true, or "" and false
// for Completed (which has no successor) and Aborted.
func (p Phase) Next() (Phase, bool) {
	for i, cur := range PhaseOrder {
		if cur == p && i+1 < len(PhaseOrder) {
			return PhaseOrder[i+1], true
		}
	}
	return "", false
}

// Status is the coarse lifecycle state of a run, derived from the
// materialized view rather than stored independently.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)
