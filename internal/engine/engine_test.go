package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gatewright/internal/store"
	"github.com/roach88/gatewright/internal/wf"
)

var testClock = func() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func newTestEngine(t *testing.T, runIDs ...string) *Engine {
	t.Helper()
	if len(runIDs) == 0 {
		runIDs = []string{"run-1"}
	}
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return New(s,
		WithRunIDGenerator(NewFixedGenerator(runIDs...)),
		WithClock(testClock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func testFinding(locationRef string, line int, category string, sev wf.Severity) wf.Finding {
	return wf.Finding{
		LocationRef: locationRef,
		Line:        line,
		Category:    category,
		Severity:    sev,
		Description: "test finding",
		Decision:    wf.DecisionPending,
	}
}

func testDrift(claimRef string) wf.DriftRecord {
	return wf.DriftRecord{
		ClaimRef:   claimRef,
		Expected:   "exists",
		Observed:   wf.ObservedAbsent,
		Resolution: wf.ResolutionPending,
	}
}

// advanceToPlanning drives a fresh run through both discovery phases
// with no findings or drift.
func advanceToPlanning(t *testing.T, e *Engine, runID string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.Transition(ctx, runID, wf.PhaseIssueDiscovery)
	require.NoError(t, err)
	_, err = e.Transition(ctx, runID, wf.PhasePlanning)
	require.NoError(t, err)
}

// advanceToImplementation additionally proposes and approves a
// single-component plan.
func advanceToImplementation(t *testing.T, e *Engine, runID string) {
	t.Helper()
	ctx := context.Background()
	advanceToPlanning(t, e, runID)
	_, err := e.ProposePlan(ctx, runID, []wf.ComponentSpec{
		{Name: "core", Purpose: "main change"},
	})
	require.NoError(t, err)
	_, err = e.ApprovePlan(ctx, runID, 1, "")
	require.NoError(t, err)
	_, err = e.Transition(ctx, runID, wf.PhaseImplementation)
	require.NoError(t, err)
}

func TestStartRun(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	view, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)

	assert.Equal(t, "run-1", view.ID)
	assert.Equal(t, "PR-42", view.SubjectRef)
	assert.Equal(t, wf.PhaseDocDiscovery, view.Phase)
	assert.Equal(t, wf.StatusActive, view.Status())
	assert.Equal(t, int64(1), view.LastSeq)
}

func TestStartRunEmptySubject(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.StartRun(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsInvalidDecision(err))
}

func TestGetStateUnknownRun(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.GetState(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.True(t, IsRunNotFound(err))
}

func TestRegisterFindingsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseIssueDiscovery)
	require.NoError(t, err)

	f := testFinding("app/views.py", 1, "non-centralized-logger", wf.SeverityHigh)

	newIDs, err := e.RegisterFindings(ctx, "run-1", []wf.Finding{f})
	require.NoError(t, err)
	require.Len(t, newIDs, 1)

	// Same observation again: zero new findings.
	again, err := e.RegisterFindings(ctx, "run-1", []wf.Finding{f})
	require.NoError(t, err)
	assert.Empty(t, again)

	view, err := e.GetState(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, view.Findings, 1)
	assert.Equal(t, wf.SeverityHigh, view.Findings[0].Severity)
	assert.Equal(t, wf.DecisionPending, view.Findings[0].Decision)
	assert.Equal(t, wf.StatusSuspended, view.Status())
}

func TestRegisterFindingsPhaseGuard(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToPlanning(t, e, "run-1")

	_, err = e.RegisterFindings(ctx, "run-1", []wf.Finding{
		testFinding("a.py", 1, "todo", wf.SeverityLow),
	})
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))
}

func TestRegisterDriftOnlyInDocDiscovery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)

	ids, err := e.RegisterDrift(ctx, "run-1", []wf.DriftRecord{testDrift("docs/api.md#users")})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// Resolve so the transition guard passes.
	_, err = e.SubmitDriftResolution(ctx, "run-1", ids[0], wf.ResolutionCodeIsRight)
	require.NoError(t, err)

	_, err = e.Transition(ctx, "run-1", wf.PhaseIssueDiscovery)
	require.NoError(t, err)

	_, err = e.RegisterDrift(ctx, "run-1", []wf.DriftRecord{testDrift("docs/api.md#admin")})
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))
}

func TestTransitionBlockedByPendingFinding(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseIssueDiscovery)
	require.NoError(t, err)

	_, err = e.RegisterFindings(ctx, "run-1", []wf.Finding{
		testFinding("a.py", 10, "security", wf.SeverityCritical),
	})
	require.NoError(t, err)

	_, err = e.Transition(ctx, "run-1", wf.PhasePlanning)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))

	// Phase unchanged.
	view, err := e.GetState(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, wf.PhaseIssueDiscovery, view.Phase)
	assert.Equal(t, wf.StatusSuspended, view.Status())
}

func TestSubmitFindingDecision(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseIssueDiscovery)
	require.NoError(t, err)

	ids, err := e.RegisterFindings(ctx, "run-1", []wf.Finding{
		testFinding("a.py", 10, "security", wf.SeverityCritical),
	})
	require.NoError(t, err)

	view, err := e.SubmitFindingDecision(ctx, "run-1", ids[0], wf.DecisionFixNow, "")
	require.NoError(t, err)
	assert.Equal(t, wf.DecisionFixNow, view.FindingByID(ids[0]).Decision)

	// Transition unblocks.
	_, err = e.Transition(ctx, "run-1", wf.PhasePlanning)
	require.NoError(t, err)
}

func TestSubmitFindingDecisionRejections(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseIssueDiscovery)
	require.NoError(t, err)

	ids, err := e.RegisterFindings(ctx, "run-1", []wf.Finding{
		testFinding("a.py", 10, "security", wf.SeverityCritical),
	})
	require.NoError(t, err)

	// Outside the allowed set.
	_, err = e.SubmitFindingDecision(ctx, "run-1", ids[0], wf.FindingDecision("defer"), "")
	assert.True(t, IsInvalidDecision(err))

	// Superseded is internal only.
	_, err = e.SubmitFindingDecision(ctx, "run-1", ids[0], wf.DecisionSuperseded, "")
	assert.True(t, IsInvalidDecision(err))

	// Unknown target.
	_, err = e.SubmitFindingDecision(ctx, "run-1", "nope", wf.DecisionFixNow, "")
	assert.True(t, IsInvalidDecision(err))

	// Reason required.
	_, err = e.SubmitFindingDecision(ctx, "run-1", ids[0], wf.DecisionIgnoredWithReason, "")
	assert.True(t, IsInvalidDecision(err))

	// Already decided.
	_, err = e.SubmitFindingDecision(ctx, "run-1", ids[0], wf.DecisionIgnore, "")
	require.NoError(t, err)
	_, err = e.SubmitFindingDecision(ctx, "run-1", ids[0], wf.DecisionFixNow, "")
	assert.True(t, IsInvalidDecision(err))
}

func TestSupersedeFinding(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseIssueDiscovery)
	require.NoError(t, err)

	ids, err := e.RegisterFindings(ctx, "run-1", []wf.Finding{
		testFinding("a.py", 10, "security", wf.SeverityCritical),
	})
	require.NoError(t, err)

	corrected := testFinding("a.py", 12, "security", wf.SeverityHigh)
	view, err := e.SupersedeFinding(ctx, "run-1", ids[0], corrected)
	require.NoError(t, err)

	require.Len(t, view.Findings, 2)
	assert.Equal(t, wf.DecisionSuperseded, view.FindingByID(ids[0]).Decision)
	assert.Equal(t, 1, view.PendingFindings())
}

func TestProposePlanValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToPlanning(t, e, "run-1")

	_, err = e.ProposePlan(ctx, "run-1", nil)
	assert.True(t, IsInvalidDecision(err))

	_, err = e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{
		{Name: "a"}, {Name: "a"},
	})
	assert.True(t, IsInvalidDecision(err))

	_, err = e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{
		{Name: "a", DependsOn: []string{"missing"}},
	})
	assert.True(t, IsInvalidDecision(err))

	_, err = e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{
		{Name: "a", DependsOn: []string{"a"}},
	})
	assert.True(t, IsInvalidDecision(err))
}

func TestStalePlanApproval(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToPlanning(t, e, "run-1")

	_, err = e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{{Name: "a", Purpose: "first"}})
	require.NoError(t, err)
	view, err := e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{{Name: "a", Purpose: "revised"}})
	require.NoError(t, err)
	assert.Equal(t, 2, view.CurrentPlan().Version)

	_, err = e.ApprovePlan(ctx, "run-1", 1, "")
	require.Error(t, err)
	assert.True(t, IsStalePlan(err))

	view, err = e.ApprovePlan(ctx, "run-1", 2, "lgtm")
	require.NoError(t, err)
	assert.True(t, view.CurrentPlan().Approved)
	assert.Equal(t, "lgtm", view.CurrentPlan().ApprovalNotes)
}

func TestProposeAfterApprovalResetsGate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToPlanning(t, e, "run-1")

	_, err = e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{{Name: "a"}})
	require.NoError(t, err)
	_, err = e.ApprovePlan(ctx, "run-1", 1, "")
	require.NoError(t, err)

	// A new proposal supersedes the approved plan.
	view, err := e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	assert.False(t, view.CurrentPlan().Approved)

	_, err = e.Transition(ctx, "run-1", wf.PhaseImplementation)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))
}

func TestImplementationRequiresApprovedPlan(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToPlanning(t, e, "run-1")

	_, err = e.Transition(ctx, "run-1", wf.PhaseImplementation)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))
}

func TestMarkDelivered(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToPlanning(t, e, "run-1")

	_, err = e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{
		{Name: "schema", Purpose: "storage"},
		{Name: "api", Purpose: "surface", DependsOn: []string{"schema"}},
	})
	require.NoError(t, err)
	_, err = e.ApprovePlan(ctx, "run-1", 1, "")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseImplementation)
	require.NoError(t, err)

	// Dependency not delivered yet.
	_, err = e.MarkDelivered(ctx, "run-1", "api")
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))

	// Unknown component.
	_, err = e.MarkDelivered(ctx, "run-1", "nope")
	assert.True(t, IsInvalidDecision(err))

	_, err = e.MarkDelivered(ctx, "run-1", "schema")
	require.NoError(t, err)
	// Idempotent.
	_, err = e.MarkDelivered(ctx, "run-1", "schema")
	require.NoError(t, err)

	view, err := e.MarkDelivered(ctx, "run-1", "api")
	require.NoError(t, err)
	assert.True(t, view.CurrentPlan().AllDelivered())

	_, err = e.Transition(ctx, "run-1", wf.PhaseVerification)
	require.NoError(t, err)
}

func TestVerificationGuard(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToImplementation(t, e, "run-1")

	// Undelivered plan blocks verification.
	_, err = e.Transition(ctx, "run-1", wf.PhaseVerification)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))

	_, err = e.MarkDelivered(ctx, "run-1", "core")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseVerification)
	require.NoError(t, err)

	// No recorded results: the empty round never passes.
	_, err = e.Transition(ctx, "run-1", wf.PhaseFinalChecklist)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))

	_, err = e.RecordVerification(ctx, "run-1", "tests", false)
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseFinalChecklist)
	require.Error(t, err)

	// Re-recording the same name replaces the earlier outcome.
	view, err := e.RecordVerification(ctx, "run-1", "tests", true)
	require.NoError(t, err)
	require.Len(t, view.Verifications, 1)
	assert.True(t, view.Verifications[0].Pass)

	_, err = e.Transition(ctx, "run-1", wf.PhaseFinalChecklist)
	require.NoError(t, err)
}

func TestChecklistReworkLoop(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToImplementation(t, e, "run-1")
	_, err = e.MarkDelivered(ctx, "run-1", "core")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseVerification)
	require.NoError(t, err)
	_, err = e.RecordVerification(ctx, "run-1", "tests", true)
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseFinalChecklist)
	require.NoError(t, err)

	// Rework requires a failed item.
	_, err = e.Transition(ctx, "run-1", wf.PhaseImplementation)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))

	_, err = e.RecordChecklist(ctx, "run-1", "docs updated", false)
	require.NoError(t, err)

	// Completion blocked by the failed item.
	_, err = e.Transition(ctx, "run-1", wf.PhaseCompleted)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))

	// Back to implementation: delivery and check state reset.
	view, err := e.Transition(ctx, "run-1", wf.PhaseImplementation)
	require.NoError(t, err)
	assert.Equal(t, wf.PhaseImplementation, view.Phase)
	assert.False(t, view.CurrentPlan().AllDelivered())
	assert.Empty(t, view.Verifications)
	assert.Empty(t, view.Checklist)

	// Second pass through to completion.
	_, err = e.MarkDelivered(ctx, "run-1", "core")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseVerification)
	require.NoError(t, err)
	_, err = e.RecordVerification(ctx, "run-1", "tests", true)
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseFinalChecklist)
	require.NoError(t, err)
	_, err = e.RecordChecklist(ctx, "run-1", "docs updated", true)
	require.NoError(t, err)

	view, err = e.Transition(ctx, "run-1", wf.PhaseCompleted)
	require.NoError(t, err)
	assert.Equal(t, wf.PhaseCompleted, view.Phase)
	assert.Equal(t, wf.StatusCompleted, view.Status())
}

func TestAbort(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)
	advanceToPlanning(t, e, "run-1")

	view, err := e.Abort(ctx, "run-1", "requirements changed")
	require.NoError(t, err)
	assert.Equal(t, wf.PhaseAborted, view.Phase)
	assert.Equal(t, wf.PhasePlanning, view.AbortedFrom)
	assert.Equal(t, "requirements changed", view.AbortReason)
	assert.Equal(t, wf.StatusAborted, view.Status())

	// Every mutation is rejected afterwards.
	_, err = e.Abort(ctx, "run-1", "again")
	assert.True(t, IsRunTerminal(err))
	_, err = e.Transition(ctx, "run-1", wf.PhasePlanning)
	assert.True(t, IsRunTerminal(err))
	_, err = e.RegisterFindings(ctx, "run-1", []wf.Finding{testFinding("a.py", 1, "todo", wf.SeverityLow)})
	assert.True(t, IsRunTerminal(err))
}

func TestTransitionRejectsAborted(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)

	_, err = e.Transition(ctx, "run-1", wf.PhaseAborted)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))
}

func TestSkipAheadRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)

	_, err = e.Transition(ctx, "run-1", wf.PhasePlanning)
	require.Error(t, err)
	assert.True(t, IsGuardViolation(err))
}

func TestListRuns(t *testing.T) {
	e := newTestEngine(t, "run-a", "run-b")
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-1")
	require.NoError(t, err)
	_, err = e.StartRun(ctx, "PR-2")
	require.NoError(t, err)

	runs, err := e.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, runs)
}

func TestVerifyReplayFullLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.StartRun(ctx, "PR-42")
	require.NoError(t, err)

	ids, err := e.RegisterDrift(ctx, "run-1", []wf.DriftRecord{testDrift("docs/api.md#users")})
	require.NoError(t, err)
	_, err = e.SubmitDriftResolution(ctx, "run-1", ids[0], wf.ResolutionDocsAreRight)
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseIssueDiscovery)
	require.NoError(t, err)

	fids, err := e.RegisterFindings(ctx, "run-1", []wf.Finding{
		testFinding("a.py", 10, "security", wf.SeverityCritical),
	})
	require.NoError(t, err)
	_, err = e.SubmitFindingDecision(ctx, "run-1", fids[0], wf.DecisionCreateIssue, "")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhasePlanning)
	require.NoError(t, err)

	_, err = e.ProposePlan(ctx, "run-1", []wf.ComponentSpec{{Name: "core"}})
	require.NoError(t, err)
	_, err = e.ApprovePlan(ctx, "run-1", 1, "")
	require.NoError(t, err)
	_, err = e.Transition(ctx, "run-1", wf.PhaseImplementation)
	require.NoError(t, err)

	require.NoError(t, e.VerifyReplay(ctx, "run-1"))

	// A second engine over the same database folds to the same view.
	view1, err := e.GetState(ctx, "run-1")
	require.NoError(t, err)

	e2 := New(e.store, WithClock(testClock))
	view2, err := e2.GetState(ctx, "run-1")
	require.NoError(t, err)

	b1, err := wf.MarshalCanonicalValue(view1)
	require.NoError(t, err)
	b2, err := wf.MarshalCanonicalValue(view2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}
