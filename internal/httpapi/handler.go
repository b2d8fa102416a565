// Package httpapi exposes the workflow engine over HTTP.
//
// The API is a thin translation layer: every route binds a request,
// calls one engine operation, and maps the result or the workflow error
// to a status code. No workflow logic lives here.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/gatewright/internal/engine"
	"github.com/roach88/gatewright/internal/wf"
)

type Handler struct {
	Engine *engine.Engine
}

// NewRouter builds the gin engine with all workflow routes registered.
func NewRouter(e *engine.Engine) *gin.Engine {
	h := &Handler{Engine: e}
	r := gin.Default()

	r.POST("/runs", h.StartRun)
	r.GET("/runs", h.ListRuns)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/runs/:id/replay", h.VerifyReplay)
	r.POST("/runs/:id/findings", h.RegisterFindings)
	r.POST("/runs/:id/drift", h.RegisterDrift)
	r.POST("/runs/:id/findings/:finding/decision", h.SubmitFindingDecision)
	r.POST("/runs/:id/findings/:finding/supersede", h.SupersedeFinding)
	r.POST("/runs/:id/drift/:drift/resolution", h.SubmitDriftResolution)
	r.POST("/runs/:id/plan", h.ProposePlan)
	r.POST("/runs/:id/plan/approval", h.ApprovePlan)
	r.POST("/runs/:id/transition", h.Transition)
	r.POST("/runs/:id/abort", h.Abort)
	r.POST("/runs/:id/deliveries", h.MarkDelivered)
	r.POST("/runs/:id/verifications", h.RecordVerification)
	r.POST("/runs/:id/checklist", h.RecordChecklist)

	return r
}

// writeError maps a workflow error to an HTTP status. Guard violations
// and stale plans are conflicts with current run state; rejected
// decisions are bad requests; corruption is a server-side integrity
// failure.
func writeError(c *gin.Context, err error) {
	var we *engine.WorkflowError
	status := http.StatusInternalServerError
	switch {
	case engine.IsRunNotFound(err):
		status = http.StatusNotFound
	case engine.IsGuardViolation(err), engine.IsStalePlan(err), engine.IsRunTerminal(err):
		status = http.StatusConflict
	case engine.IsInvalidDecision(err):
		status = http.StatusBadRequest
	case engine.IsReplayCorruption(err):
		status = http.StatusInternalServerError
	}

	if errors.As(err, &we) {
		c.JSON(status, gin.H{
			"error":   we.Message,
			"code":    we.Code,
			"run_id":  we.RunID,
			"details": we.Details,
		})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) StartRun(c *gin.Context) {
	var req struct {
		SubjectRef string `json:"subject_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.StartRun(c.Request.Context(), req.SubjectRef)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) ListRuns(c *gin.Context) {
	runs, err := h.Engine.ListRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handler) GetRun(c *gin.Context) {
	view, err := h.Engine.GetState(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) VerifyReplay(c *gin.Context) {
	runID := c.Param("id")
	if err := h.Engine.VerifyReplay(c.Request.Context(), runID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "deterministic": true})
}

func (h *Handler) RegisterFindings(c *gin.Context) {
	var req struct {
		Findings []wf.Finding `json:"findings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newIDs, err := h.Engine.RegisterFindings(c.Request.Context(), c.Param("id"), req.Findings)
	if err != nil {
		writeError(c, err)
		return
	}
	if newIDs == nil {
		newIDs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"new_finding_ids": newIDs})
}

func (h *Handler) RegisterDrift(c *gin.Context) {
	var req struct {
		Drifts []wf.DriftRecord `json:"drifts"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newIDs, err := h.Engine.RegisterDrift(c.Request.Context(), c.Param("id"), req.Drifts)
	if err != nil {
		writeError(c, err)
		return
	}
	if newIDs == nil {
		newIDs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"new_drift_ids": newIDs})
}

func (h *Handler) SubmitFindingDecision(c *gin.Context) {
	var req struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.SubmitFindingDecision(c.Request.Context(),
		c.Param("id"), c.Param("finding"), wf.FindingDecision(req.Decision), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) SupersedeFinding(c *gin.Context) {
	var req struct {
		Corrected wf.Finding `json:"corrected"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.SupersedeFinding(c.Request.Context(),
		c.Param("id"), c.Param("finding"), req.Corrected)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) SubmitDriftResolution(c *gin.Context) {
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.SubmitDriftResolution(c.Request.Context(),
		c.Param("id"), c.Param("drift"), wf.DriftResolution(req.Resolution))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ProposePlan(c *gin.Context) {
	var req struct {
		Components []wf.ComponentSpec `json:"components"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.ProposePlan(c.Request.Context(), c.Param("id"), req.Components)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ApprovePlan(c *gin.Context) {
	var req struct {
		Version int    `json:"version"`
		Notes   string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.ApprovePlan(c.Request.Context(), c.Param("id"), req.Version, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Transition(c *gin.Context) {
	var req struct {
		To string `json:"to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	phase, err := wf.ParsePhase(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.Transition(c.Request.Context(), c.Param("id"), phase)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Abort(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.Abort(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) MarkDelivered(c *gin.Context) {
	var req struct {
		Component string `json:"component"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.MarkDelivered(c.Request.Context(), c.Param("id"), req.Component)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) RecordVerification(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
		Pass bool   `json:"pass"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.RecordVerification(c.Request.Context(), c.Param("id"), req.Name, req.Pass)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) RecordChecklist(c *gin.Context) {
	var req struct {
		Item string `json:"item"`
		Pass bool   `json:"pass"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.Engine.RecordChecklist(c.Request.Context(), c.Param("id"), req.Item, req.Pass)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
