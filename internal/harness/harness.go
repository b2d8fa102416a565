package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/gatewright/internal/engine"
	"github.com/roach88/gatewright/internal/store"
	"github.com/roach88/gatewright/internal/testutil"
	"github.com/roach88/gatewright/internal/wf"
)

// SnapshotTime is the frozen instant every scenario runs at. Ledger
// timestamps and the folded created_at all carry this value, keeping
// golden snapshots byte-stable.
var SnapshotTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// Run executes a scenario against a fresh engine backed by a
// throwaway store. Expectation mismatches land in the result's Errors;
// infrastructure failures (I/O, malformed steps) are returned as an
// error instead.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "gatewright-harness-")
	if err != nil {
		return nil, fmt.Errorf("harness workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, fmt.Errorf("harness store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFrozenClock(SnapshotTime)
	eng := engine.New(st,
		engine.WithRunIDGenerator(engine.NewFixedGenerator(scenario.runID())),
		engine.WithClock(clock.Now),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx := context.Background()
	runID := scenario.runID()
	result := &Result{Scenario: scenario.Name, Pass: true}

	for i, step := range scenario.Steps {
		newIDs, opErr := applyStep(ctx, eng, runID, step)

		code := ""
		if opErr != nil {
			var we *engine.WorkflowError
			if !errors.As(opErr, &we) {
				return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, opErr)
			}
			code = string(we.Code)
		}

		switch {
		case step.ExpectError == "" && code != "":
			result.AddError("step %d (%s): unexpected %s: %v", i, step.Op, code, opErr)
		case step.ExpectError != "" && code == "":
			result.AddError("step %d (%s): expected %s, operation succeeded", i, step.Op, step.ExpectError)
		case step.ExpectError != "" && code != step.ExpectError:
			result.AddError("step %d (%s): expected %s, got %s", i, step.Op, step.ExpectError, code)
		}

		view, err := eng.GetState(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): read state: %w", i, step.Op, err)
		}

		if step.ExpectPhase != "" && string(view.Phase) != step.ExpectPhase {
			result.AddError("step %d (%s): phase %s, want %s", i, step.Op, view.Phase, step.ExpectPhase)
		}
		if step.ExpectStatus != "" && string(view.Status()) != step.ExpectStatus {
			result.AddError("step %d (%s): status %s, want %s", i, step.Op, view.Status(), step.ExpectStatus)
		}

		result.Trace = append(result.Trace, StepTrace{
			Op:     step.Op,
			Error:  code,
			Phase:  view.Phase,
			Status: view.Status(),
			NewIDs: newIDs,
		})
		result.Final = view
	}

	return result, nil
}

func applyStep(ctx context.Context, eng *engine.Engine, runID string, step Step) ([]string, error) {
	switch step.Op {
	case OpStart:
		_, err := eng.StartRun(ctx, step.SubjectRef)
		return nil, err

	case OpTransition:
		phase, err := wf.ParsePhase(step.To)
		if err != nil {
			return nil, fmt.Errorf("transition: %w", err)
		}
		_, err = eng.Transition(ctx, runID, phase)
		return nil, err

	case OpFinding:
		sev, err := wf.ParseSeverity(step.Severity)
		if err != nil {
			return nil, fmt.Errorf("register_finding: %w", err)
		}
		return eng.RegisterFindings(ctx, runID, []wf.Finding{{
			LocationRef: step.LocationRef,
			Line:        step.Line,
			Category:    step.Category,
			Severity:    sev,
			Description: step.Description,
		}})

	case OpDrift:
		return eng.RegisterDrift(ctx, runID, []wf.DriftRecord{{
			ClaimRef: step.ClaimRef,
			Expected: step.Expected,
			Observed: step.Observed,
		}})

	case OpDecide:
		id, err := wf.FindingFingerprint(step.LocationRef, step.Line, step.Category)
		if err != nil {
			return nil, fmt.Errorf("decide: %w", err)
		}
		_, err = eng.SubmitFindingDecision(ctx, runID, id, wf.FindingDecision(step.Decision), step.Reason)
		return nil, err

	case OpResolve:
		id, err := wf.DriftFingerprint(step.ClaimRef)
		if err != nil {
			return nil, fmt.Errorf("resolve: %w", err)
		}
		_, err = eng.SubmitDriftResolution(ctx, runID, id, wf.DriftResolution(step.Resolution))
		return nil, err

	case OpProposePlan:
		comps := make([]wf.ComponentSpec, 0, len(step.Components))
		for _, c := range step.Components {
			comps = append(comps, wf.ComponentSpec{
				Name:      c.Name,
				Purpose:   c.Purpose,
				DependsOn: c.DependsOn,
			})
		}
		_, err := eng.ProposePlan(ctx, runID, comps)
		return nil, err

	case OpApprovePlan:
		_, err := eng.ApprovePlan(ctx, runID, step.Version, step.Notes)
		return nil, err

	case OpDeliver:
		_, err := eng.MarkDelivered(ctx, runID, step.Component)
		return nil, err

	case OpVerify:
		_, err := eng.RecordVerification(ctx, runID, step.Name, step.Pass)
		return nil, err

	case OpChecklist:
		_, err := eng.RecordChecklist(ctx, runID, step.Item, step.Pass)
		return nil, err

	case OpAbort:
		_, err := eng.Abort(ctx, runID, step.Reason)
		return nil, err

	case OpVerifyReplay:
		return nil, eng.VerifyReplay(ctx, runID)
	}

	return nil, fmt.Errorf("unknown op %q", step.Op)
}
