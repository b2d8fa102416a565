package wf

import (
	"fmt"
	"time"
)

// Severity classifies how urgent a finding is. Rules declare their own
// severity; the classifier never adjusts a declared severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ParseSeverity converts a string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	switch sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Rank returns a comparable weight: higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// FindingDecision is the human decision recorded against a finding.
type FindingDecision string

const (
	DecisionPending           FindingDecision = "pending"
	DecisionFixNow            FindingDecision = "fix_now"
	DecisionDocumentInPR      FindingDecision = "document_in_pr"
	DecisionCreateIssue       FindingDecision = "create_issue"
	DecisionDocumentInCommit  FindingDecision = "document_in_commit"
	DecisionIgnore            FindingDecision = "ignore"
	DecisionIgnoredWithReason FindingDecision = "ignored_with_reason"

	// DecisionSuperseded is set internally when a finding is replaced by
	// a corrected one. It is not accepted from external submitters.
	DecisionSuperseded FindingDecision = "superseded"
)

// SubmittableFindingDecisions is the allowed set for external decision
// submission against a finding.
var SubmittableFindingDecisions = []FindingDecision{
	DecisionFixNow,
	DecisionDocumentInPR,
	DecisionCreateIssue,
	DecisionDocumentInCommit,
	DecisionIgnore,
	DecisionIgnoredWithReason,
}

// DriftResolution is the human decision recorded against a drift record.
type DriftResolution string

const (
	ResolutionPending      DriftResolution = "pending"
	ResolutionDocsAreRight DriftResolution = "docs_are_right"
	ResolutionCodeIsRight  DriftResolution = "code_is_right"
	ResolutionBothStale    DriftResolution = "both_stale"
)

// SubmittableDriftResolutions is the allowed set for external decision
// submission against a drift record.
var SubmittableDriftResolutions = []DriftResolution{
	ResolutionDocsAreRight,
	ResolutionCodeIsRight,
	ResolutionBothStale,
}

// CategoryAnalysisIncomplete marks degraded findings and drift records
// produced when an artifact could not be analyzed. The scan never aborts
// on a bad artifact; it records one low-severity finding instead.
const CategoryAnalysisIncomplete = "analysis-incomplete"

// Finding is a detected defect instance awaiting a human decision.
//
// ID is the content-addressed fingerprint over (LocationRef, Line,
// Category), so an identical re-scan produces identical IDs and
// registration stays idempotent. Findings are never deleted; a
// superseded finding keeps its entry with Decision set to superseded.
type Finding struct {
	ID             string          `json:"id"`
	LocationRef    string          `json:"location_ref"`
	Line           int             `json:"line"`
	Category       string          `json:"category"`
	Severity       Severity        `json:"severity"`
	Description    string          `json:"description"`
	RecommendedFix string          `json:"recommended_fix,omitempty"`
	Decision       FindingDecision `json:"decision"`
	DecisionReason string          `json:"decision_reason,omitempty"`
}

// DriftRecord is a mismatch between a documentation claim and the
// observed code inventory. Observed is ObservedAbsent when the claimed
// symbol does not appear in the inventory at all.
type DriftRecord struct {
	ID         string          `json:"id"`
	ClaimRef   string          `json:"claim_ref"`
	Expected   string          `json:"expected"`
	Observed   string          `json:"observed"`
	Resolution DriftResolution `json:"resolution"`
}

// ObservedAbsent is the sentinel observation for a symbol missing from
// the code inventory.
const ObservedAbsent = "Absent"

// ComponentSpec is one planned implementation component.
type ComponentSpec struct {
	Name      string   `json:"name"`
	Purpose   string   `json:"purpose"`
	DependsOn []string `json:"depends_on,omitempty"`
	Delivered bool     `json:"delivered"`
}

// Plan is one proposed implementation plan version. Exactly one plan
// version is current per run; proposing again supersedes the previous
// version. An approved plan is immutable - amendments always create a
// new version.
type Plan struct {
	Version       int             `json:"version"`
	Components    []ComponentSpec `json:"components"`
	Approved      bool            `json:"approved"`
	ApprovalNotes string          `json:"approval_notes,omitempty"`
}

// Component returns the named component and true, or nil and false.
func (p *Plan) Component(name string) (*ComponentSpec, bool) {
	for i := range p.Components {
		if p.Components[i].Name == name {
			return &p.Components[i], true
		}
	}
	return nil, false
}

// AllDelivered reports whether every planned component has been
// delivered. An empty plan is never considered delivered.
func (p *Plan) AllDelivered() bool {
	if len(p.Components) == 0 {
		return false
	}
	for i := range p.Components {
		if !p.Components[i].Delivered {
			return false
		}
	}
	return true
}

// CheckResult is one externally recorded verification or checklist
// outcome. Re-recording the same name replaces the previous outcome.
type CheckResult struct {
	Name string `json:"name"`
	Pass bool   `json:"pass"`
}

// EntryKind identifies a ledger entry payload type.
type EntryKind string

const (
	KindRunStarted         EntryKind = "run_started"
	KindPhaseTransition    EntryKind = "phase_transition"
	KindFindingRegistered  EntryKind = "finding_registered"
	KindDriftRegistered    EntryKind = "drift_registered"
	KindFindingDecision    EntryKind = "finding_decision"
	KindDriftResolution    EntryKind = "drift_resolution"
	KindPlanProposed       EntryKind = "plan_proposed"
	KindPlanApproval       EntryKind = "plan_approval"
	KindComponentDelivered EntryKind = "component_delivered"
	KindVerificationResult EntryKind = "verification_result"
	KindChecklistResult    EntryKind = "checklist_result"
)

// LedgerEntry is one immutable, ordered audit record. Seq is assigned by
// the store, strictly increasing and gap-free within a run. Payload is
// canonical JSON so that replays compare byte for byte.
type LedgerEntry struct {
	RunID     string    `json:"run_id"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EntryKind `json:"kind"`
	Payload   []byte    `json:"payload"`
}

// Ledger entry payloads. One struct per EntryKind; the store serializes
// these to canonical JSON and the engine's fold switches on Kind to
// decode them again.

type RunStartedPayload struct {
	SubjectRef string `json:"subject_ref"`
}

// PhaseTransitionPayload records a transition From -> To. Reason is set
// only for transitions to Aborted, where From doubles as the
// originating phase.
type PhaseTransitionPayload struct {
	From   Phase  `json:"from"`
	To     Phase  `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type FindingRegisteredPayload struct {
	Finding Finding `json:"finding"`
}

type DriftRegisteredPayload struct {
	Drift DriftRecord `json:"drift"`
}

type FindingDecisionPayload struct {
	FindingID string          `json:"finding_id"`
	Decision  FindingDecision `json:"decision"`
	Reason    string          `json:"reason,omitempty"`
}

type DriftResolutionPayload struct {
	DriftID    string          `json:"drift_id"`
	Resolution DriftResolution `json:"resolution"`
}

type PlanProposedPayload struct {
	Version    int             `json:"version"`
	Components []ComponentSpec `json:"components"`
}

type PlanApprovalPayload struct {
	Version int    `json:"version"`
	Notes   string `json:"notes,omitempty"`
}

type ComponentDeliveredPayload struct {
	Component string `json:"component"`
}

type VerificationResultPayload struct {
	Name string `json:"name"`
	Pass bool   `json:"pass"`
}

type ChecklistResultPayload struct {
	Item string `json:"item"`
	Pass bool   `json:"pass"`
}

// RunView is the materialized state of one run, produced only by
// folding ledger entries in order. It is a cache, never an authority:
// any two folds of the same entry sequence yield identical views.
type RunView struct {
	ID          string    `json:"id"`
	SubjectRef  string    `json:"subject_ref"`
	Phase       Phase     `json:"phase"`
	CreatedAt   time.Time `json:"created_at"`
	AbortReason string    `json:"abort_reason,omitempty"`
	AbortedFrom Phase     `json:"aborted_from,omitempty"`

	Findings []Finding     `json:"findings,omitempty"`
	Drifts   []DriftRecord `json:"drifts,omitempty"`

	// Plans holds every proposed version in order; the last element is
	// the current plan.
	Plans []Plan `json:"plans,omitempty"`

	Verifications []CheckResult `json:"verifications,omitempty"`
	Checklist     []CheckResult `json:"checklist,omitempty"`

	LastSeq int64 `json:"last_seq"`
}

// CurrentPlan returns the latest proposed plan, or nil if none.
func (v *RunView) CurrentPlan() *Plan {
	if len(v.Plans) == 0 {
		return nil
	}
	return &v.Plans[len(v.Plans)-1]
}

// FindingByID returns the finding with the given ID, or nil.
func (v *RunView) FindingByID(id string) *Finding {
	for i := range v.Findings {
		if v.Findings[i].ID == id {
			return &v.Findings[i]
		}
	}
	return nil
}

// DriftByID returns the drift record with the given ID, or nil.
func (v *RunView) DriftByID(id string) *DriftRecord {
	for i := range v.Drifts {
		if v.Drifts[i].ID == id {
			return &v.Drifts[i]
		}
	}
	return nil
}

// PendingFindings counts findings still awaiting a decision.
func (v *RunView) PendingFindings() int {
	n := 0
	for i := range v.Findings {
		if v.Findings[i].Decision == DecisionPending {
			n++
		}
	}
	return n
}

// PendingDrifts counts drift records still awaiting a resolution.
func (v *RunView) PendingDrifts() int {
	n := 0
	for i := range v.Drifts {
		if v.Drifts[i].Resolution == ResolutionPending {
			n++
		}
	}
	return n
}

// Status derives the coarse lifecycle state. A run is Suspended while it
// waits on an external human decision: pending findings or drift during
// the discovery phases, or an unapproved plan during planning. There is
// no timeout; only an explicit decision or abort moves it on.
func (v *RunView) Status() Status {
	switch v.Phase {
	case PhaseCompleted:
		return StatusCompleted
	case PhaseAborted:
		return StatusAborted
	case PhaseDocDiscovery, PhaseIssueDiscovery:
		if v.PendingFindings() > 0 || v.PendingDrifts() > 0 {
			return StatusSuspended
		}
	case PhasePlanning:
		if v.PendingFindings() > 0 || v.PendingDrifts() > 0 {
			return StatusSuspended
		}
		if p := v.CurrentPlan(); p != nil && !p.Approved {
			return StatusSuspended
		}
	}
	return StatusActive
}

// ChecksPass reports whether results is non-empty and every result
// passed. Guards require at least one recorded result so that an empty
// verification round cannot slip through.
func ChecksPass(results []CheckResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// AnyCheckFailed reports whether at least one recorded result failed.
func AnyCheckFailed(results []CheckResult) bool {
	for _, r := range results {
		if !r.Pass {
			return true
		}
	}
	return false
}
