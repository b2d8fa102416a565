package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gatewright/internal/engine"
	"github.com/roach88/gatewright/internal/store"
	"github.com/roach88/gatewright/internal/wf"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := engine.New(s,
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1", "run-2", "run-3")),
		engine.WithClock(func() time.Time {
			return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		}),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return NewRouter(e)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func startRun(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, "POST", "/runs", gin.H{"subject_ref": "PR-42"})
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeBody(t, w)["id"].(string)
}

func TestStartAndGetRun(t *testing.T) {
	r := setupTestRouter(t)

	id := startRun(t, r)
	assert.Equal(t, "run-1", id)

	w := doJSON(t, r, "GET", "/runs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "PR-42", body["subject_ref"])
	assert.Equal(t, string(wf.PhaseDocDiscovery), body["phase"])
}

func TestGetRunNotFound(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, "GET", "/runs/ghost", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(engine.ErrCodeRunNotFound), decodeBody(t, w)["code"])
}

func TestListRuns(t *testing.T) {
	r := setupTestRouter(t)

	w := doJSON(t, r, "GET", "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["runs"])

	startRun(t, r)
	w = doJSON(t, r, "GET", "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"run-1"}, decodeBody(t, w)["runs"].([]any))
}

func TestRegisterFindingsIdempotent(t *testing.T) {
	r := setupTestRouter(t)
	id := startRun(t, r)

	w := doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "issue_discovery"})
	require.Equal(t, http.StatusOK, w.Code)

	finding := gin.H{
		"location_ref": "app/views.py",
		"line":         1,
		"category":     "non-centralized-logger",
		"severity":     "high",
		"description":  "module-level logger",
	}

	w = doJSON(t, r, "POST", "/runs/"+id+"/findings", gin.H{"findings": []gin.H{finding}})
	require.Equal(t, http.StatusOK, w.Code)
	first := decodeBody(t, w)["new_finding_ids"].([]any)
	require.Len(t, first, 1)

	w = doJSON(t, r, "POST", "/runs/"+id+"/findings", gin.H{"findings": []gin.H{finding}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["new_finding_ids"])
}

func TestGuardViolationIsConflict(t *testing.T) {
	r := setupTestRouter(t)
	id := startRun(t, r)

	// Skipping ahead violates the phase order.
	w := doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "planning"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(engine.ErrCodeGuardViolation), decodeBody(t, w)["code"])
}

func TestUnknownPhaseIsBadRequest(t *testing.T) {
	r := setupTestRouter(t)
	id := startRun(t, r)

	w := doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "warp_speed"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecisionFlow(t *testing.T) {
	r := setupTestRouter(t)
	id := startRun(t, r)

	doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "issue_discovery"})
	w := doJSON(t, r, "POST", "/runs/"+id+"/findings", gin.H{"findings": []gin.H{{
		"location_ref": "a.py", "line": 10, "category": "security", "severity": "critical",
	}}})
	require.Equal(t, http.StatusOK, w.Code)
	fid := decodeBody(t, w)["new_finding_ids"].([]any)[0].(string)

	// Invalid decision value.
	w = doJSON(t, r, "POST", "/runs/"+id+"/findings/"+fid+"/decision", gin.H{"decision": "defer"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(engine.ErrCodeInvalidDecision), decodeBody(t, w)["code"])

	// Valid decision.
	w = doJSON(t, r, "POST", "/runs/"+id+"/findings/"+fid+"/decision", gin.H{"decision": "fix_now"})
	require.Equal(t, http.StatusOK, w.Code)

	// Transition unblocks.
	w = doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "planning"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(wf.PhasePlanning), decodeBody(t, w)["phase"])
}

func TestPlanApprovalAndStalePlan(t *testing.T) {
	r := setupTestRouter(t)
	id := startRun(t, r)

	doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "issue_discovery"})
	doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "planning"})

	w := doJSON(t, r, "POST", "/runs/"+id+"/plan", gin.H{"components": []gin.H{{
		"name": "core", "purpose": "main change",
	}}})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, "POST", "/runs/"+id+"/plan", gin.H{"components": []gin.H{{
		"name": "core", "purpose": "revised",
	}}})
	require.Equal(t, http.StatusOK, w.Code)

	// Approval against the superseded version conflicts.
	w = doJSON(t, r, "POST", "/runs/"+id+"/plan/approval", gin.H{"version": 1})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(engine.ErrCodeStalePlan), decodeBody(t, w)["code"])

	w = doJSON(t, r, "POST", "/runs/"+id+"/plan/approval", gin.H{"version": 2, "notes": "lgtm"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "implementation"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDriftFlow(t *testing.T) {
	r := setupTestRouter(t)
	id := startRun(t, r)

	w := doJSON(t, r, "POST", "/runs/"+id+"/drift", gin.H{"drifts": []gin.H{{
		"claim_ref": "docs/api.md#users",
		"expected":  "exists",
		"observed":  "Absent",
	}}})
	require.Equal(t, http.StatusOK, w.Code)
	did := decodeBody(t, w)["new_drift_ids"].([]any)[0].(string)

	w = doJSON(t, r, "POST", "/runs/"+id+"/drift/"+did+"/resolution", gin.H{"resolution": "docs_are_right"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, "POST", "/runs/"+id+"/transition", gin.H{"to": "issue_discovery"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAbortAndTerminalConflict(t *testing.T) {
	r := setupTestRouter(t)
	id := startRun(t, r)

	w := doJSON(t, r, "POST", "/runs/"+id+"/abort", gin.H{"reason": "requirements changed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(wf.PhaseAborted), decodeBody(t, w)["phase"])

	w = doJSON(t, r, "POST", "/runs/"+id+"/abort", gin.H{"reason": "again"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(engine.ErrCodeRunTerminal), decodeBody(t, w)["code"])
}

func TestVerifyReplayEndpoint(t *testing.T) {
	r := setupTestRouter(t)
	id := startRun(t, r)

	w := doJSON(t, r, "GET", "/runs/"+id+"/replay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["deterministic"])
}
