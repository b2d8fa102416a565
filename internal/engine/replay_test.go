package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gatewright/internal/wf"
)

func entry(t *testing.T, runID string, seq int64, kind wf.EntryKind, payload any) wf.LedgerEntry {
	t.Helper()
	data, err := wf.MarshalCanonicalValue(payload)
	require.NoError(t, err)
	return wf.LedgerEntry{
		RunID:     runID,
		Seq:       seq,
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Kind:      kind,
		Payload:   data,
	}
}

func startedEntry(t *testing.T, runID string) wf.LedgerEntry {
	t.Helper()
	return entry(t, runID, 1, wf.KindRunStarted, wf.RunStartedPayload{SubjectRef: "PR-42"})
}

func TestFoldEmptyLedger(t *testing.T) {
	_, err := Fold("run-1", nil)
	require.Error(t, err)
	assert.True(t, IsRunNotFound(err))
}

func TestFoldMinimalRun(t *testing.T) {
	view, err := Fold("run-1", []wf.LedgerEntry{startedEntry(t, "run-1")})
	require.NoError(t, err)
	assert.Equal(t, "run-1", view.ID)
	assert.Equal(t, "PR-42", view.SubjectRef)
	assert.Equal(t, wf.PhaseDocDiscovery, view.Phase)
	assert.Equal(t, int64(1), view.LastSeq)
}

func TestFoldSequenceGap(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 3, wf.KindPhaseTransition, wf.PhaseTransitionPayload{
			From: wf.PhaseDocDiscovery, To: wf.PhaseIssueDiscovery,
		}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldFirstEntryNotRunStarted(t *testing.T) {
	entries := []wf.LedgerEntry{
		entry(t, "run-1", 1, wf.KindPhaseTransition, wf.PhaseTransitionPayload{
			From: wf.PhaseDocDiscovery, To: wf.PhaseIssueDiscovery,
		}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldDuplicateRunStarted(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.KindRunStarted, wf.RunStartedPayload{SubjectRef: "PR-43"}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldForeignEntry(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-2", 2, wf.KindPhaseTransition, wf.PhaseTransitionPayload{
			From: wf.PhaseDocDiscovery, To: wf.PhaseIssueDiscovery,
		}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldUnknownKind(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.EntryKind("mystery"), wf.RunStartedPayload{SubjectRef: "x"}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldTransitionFromWrongPhase(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.KindPhaseTransition, wf.PhaseTransitionPayload{
			From: wf.PhasePlanning, To: wf.PhaseImplementation,
		}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldDecisionAgainstUnknownFinding(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.KindFindingDecision, wf.FindingDecisionPayload{
			FindingID: "ghost", Decision: wf.DecisionFixNow,
		}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldDuplicateFinding(t *testing.T) {
	f := wf.Finding{ID: "f-1", LocationRef: "a.py", Line: 1, Category: "todo",
		Severity: wf.SeverityLow, Decision: wf.DecisionPending}
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.KindFindingRegistered, wf.FindingRegisteredPayload{Finding: f}),
		entry(t, "run-1", 3, wf.KindFindingRegistered, wf.FindingRegisteredPayload{Finding: f}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldPlanVersionSkip(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.KindPlanProposed, wf.PlanProposedPayload{
			Version:    2,
			Components: []wf.ComponentSpec{{Name: "a"}},
		}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldApprovalWithoutPlan(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.KindPlanApproval, wf.PlanApprovalPayload{Version: 1}),
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldUndecodablePayload(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		{
			RunID:     "run-1",
			Seq:       2,
			Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			Kind:      wf.KindPhaseTransition,
			Payload:   []byte("{not json"),
		},
	}
	_, err := Fold("run-1", entries)
	require.Error(t, err)
	assert.True(t, IsReplayCorruption(err))
}

func TestFoldChecklistUpsert(t *testing.T) {
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.KindVerificationResult, wf.VerificationResultPayload{Name: "tests", Pass: false}),
		entry(t, "run-1", 3, wf.KindVerificationResult, wf.VerificationResultPayload{Name: "lint", Pass: true}),
		entry(t, "run-1", 4, wf.KindVerificationResult, wf.VerificationResultPayload{Name: "tests", Pass: true}),
	}
	view, err := Fold("run-1", entries)
	require.NoError(t, err)
	require.Len(t, view.Verifications, 2)
	assert.Equal(t, wf.CheckResult{Name: "tests", Pass: true}, view.Verifications[0])
	assert.Equal(t, wf.CheckResult{Name: "lint", Pass: true}, view.Verifications[1])
}

func TestCompareViewsDeterministic(t *testing.T) {
	f := wf.Finding{ID: "f-1", LocationRef: "a.py", Line: 1, Category: "todo",
		Severity: wf.SeverityLow, Decision: wf.DecisionPending}
	entries := []wf.LedgerEntry{
		startedEntry(t, "run-1"),
		entry(t, "run-1", 2, wf.KindFindingRegistered, wf.FindingRegisteredPayload{Finding: f}),
		entry(t, "run-1", 3, wf.KindFindingDecision, wf.FindingDecisionPayload{
			FindingID: "f-1", Decision: wf.DecisionFixNow,
		}),
	}
	require.NoError(t, CompareViews("run-1", entries))
}
