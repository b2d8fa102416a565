package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/gatewright/internal/wf"
)

// WorkflowError represents an error detected while applying an operation
// to a run.
//
// Workflow errors include:
//   - Guard violation: a transition's entry condition does not hold
//   - Invalid decision: a decision outside the allowed set, against an
//     unknown target, or against an already-decided target
//   - Stale plan: an approval referencing a superseded plan version
//   - Replay corruption: the ledger cannot be folded into a valid view
//
// WorkflowError includes structured fields for diagnostics and recovery.
type WorkflowError struct {
	// Code identifies the error category.
	Code WorkflowErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Phase is the run's phase at the time of the error, when known.
	Phase wf.Phase

	// Seq is the ledger position involved (for corruption errors).
	Seq int64

	// Details contains additional context.
	Details map[string]string
}

// WorkflowErrorCode categorizes workflow errors.
type WorkflowErrorCode string

const (
	// ErrCodeGuardViolation indicates a phase transition whose guard
	// condition does not hold. The run's phase is left unchanged.
	ErrCodeGuardViolation WorkflowErrorCode = "GUARD_VIOLATION"

	// ErrCodeInvalidDecision indicates a rejected decision submission.
	ErrCodeInvalidDecision WorkflowErrorCode = "INVALID_DECISION"

	// ErrCodeStalePlan indicates an approval against a plan version that
	// has been superseded.
	ErrCodeStalePlan WorkflowErrorCode = "STALE_PLAN"

	// ErrCodeReplayCorruption indicates a ledger that cannot be folded
	// into a consistent view.
	ErrCodeReplayCorruption WorkflowErrorCode = "REPLAY_CORRUPTION"

	// ErrCodeRunNotFound indicates an operation against an unknown run.
	ErrCodeRunNotFound WorkflowErrorCode = "RUN_NOT_FOUND"

	// ErrCodeRunTerminal indicates an operation against a completed or
	// aborted run.
	ErrCodeRunTerminal WorkflowErrorCode = "RUN_TERMINAL"
)

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	if e.RunID != "" && e.Phase != "" {
		return fmt.Sprintf("%s: %s (run=%s, phase=%s)", e.Code, e.Message, e.RunID, e.Phase)
	}
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsGuardViolation returns true if the error is a guard violation.
// Uses errors.As to handle wrapped errors.
func IsGuardViolation(err error) bool {
	return hasCode(err, ErrCodeGuardViolation)
}

// IsInvalidDecision returns true if the error is a rejected decision.
func IsInvalidDecision(err error) bool {
	return hasCode(err, ErrCodeInvalidDecision)
}

// IsStalePlan returns true if the error is a stale plan approval.
func IsStalePlan(err error) bool {
	return hasCode(err, ErrCodeStalePlan)
}

// IsReplayCorruption returns true if the error is ledger corruption.
func IsReplayCorruption(err error) bool {
	return hasCode(err, ErrCodeReplayCorruption)
}

// IsRunNotFound returns true if the error is an unknown run.
func IsRunNotFound(err error) bool {
	return hasCode(err, ErrCodeRunNotFound)
}

// IsRunTerminal returns true if the error is an operation against a
// terminal run.
func IsRunTerminal(err error) bool {
	return hasCode(err, ErrCodeRunTerminal)
}

func hasCode(err error, code WorkflowErrorCode) bool {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}

// NewGuardViolation creates a WorkflowError for a failed transition guard.
func NewGuardViolation(runID string, phase wf.Phase, msg string) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeGuardViolation,
		Message: msg,
		RunID:   runID,
		Phase:   phase,
	}
}

// NewInvalidDecision creates a WorkflowError for a rejected decision.
func NewInvalidDecision(runID, msg string) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeInvalidDecision,
		Message: msg,
		RunID:   runID,
	}
}

// NewStalePlan creates a WorkflowError for an approval against a
// superseded plan version.
func NewStalePlan(runID string, approved, current int) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeStalePlan,
		Message: fmt.Sprintf("plan version %d has been superseded by version %d", approved, current),
		RunID:   runID,
		Details: map[string]string{
			"approved_version": fmt.Sprintf("%d", approved),
			"current_version":  fmt.Sprintf("%d", current),
		},
	}
}

// NewReplayCorruption creates a WorkflowError for an unfoldable ledger.
func NewReplayCorruption(runID string, seq int64, msg string) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeReplayCorruption,
		Message: msg,
		RunID:   runID,
		Seq:     seq,
	}
}

// NewRunNotFound creates a WorkflowError for an unknown run.
func NewRunNotFound(runID string) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeRunNotFound,
		Message: "run not found",
		RunID:   runID,
	}
}

// NewRunTerminal creates a WorkflowError for an operation against a
// completed or aborted run.
func NewRunTerminal(runID string, phase wf.Phase) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeRunTerminal,
		Message: "run is in a terminal phase",
		RunID:   runID,
		Phase:   phase,
	}
}
