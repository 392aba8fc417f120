// Package api exposes the orchestrator and alert evaluator over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autoremedy/internal/errs"
	"autoremedy/internal/logger"
	"autoremedy/internal/pipeline"
	"autoremedy/pkg/models"
)

// Engine is the orchestrator surface the API needs.
type Engine interface {
	CreateIncident(ctx context.Context, in models.NewIncident) (*models.Incident, error)
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	AnalyzeIncident(ctx context.Context, incidentID string) (*models.Analysis, error)
	LatestAnalysis(ctx context.Context, incidentID string) (*models.Analysis, error)
	ListRemediations(ctx context.Context, incidentID string) ([]models.Remediation, error)
	ListNotifications(ctx context.Context, incidentID string) ([]models.Notification, error)
	CreateRemediation(ctx context.Context, in models.NewRemediation) (*models.Remediation, error)
	GetRemediation(ctx context.Context, id string) (*models.Remediation, error)
	ListRemediationLogs(ctx context.Context, remediationID string) ([]models.RemediationLog, error)
	ExecuteRemediation(ctx context.Context, id string) (*models.ExecutionSummary, error)
	RunDiagnostics(ctx context.Context, nodeID string) (map[string]models.ExecutionResult, error)
	Templates() []models.ActionTemplate
}

// Evaluator runs one alert evaluation cycle.
type Evaluator interface {
	EvaluateAllRules(ctx context.Context) ([]*models.Incident, error)
}

// Submitter queues a remediation for background execution.
type Submitter interface {
	Submit(id string) error
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// ExecuteResponse is returned by synchronous execution. Error is set when the
// remediation failed before or during transport.
type ExecuteResponse struct {
	*models.ExecutionSummary
	Error string `json:"error,omitempty"`
}

// Handlers holds the API dependencies.
type Handlers struct {
	engine    Engine
	evaluator Evaluator
	pool      Submitter
}

// NewHandlers creates handlers. evaluator and pool may be nil; the matching endpoints
// then answer 503.
func NewHandlers(engine Engine, evaluator Evaluator, pool Submitter) *Handlers {
	return &Handlers{engine: engine, evaluator: evaluator, pool: pool}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindState:
		return http.StatusConflict
	case errs.KindExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Kind: string(errs.KindOf(err))})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: string(errs.KindValidation)})
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateIncident handles POST /incidents.
func (h *Handlers) CreateIncident(c *gin.Context) {
	var req models.NewIncident
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	inc, err := h.engine.CreateIncident(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inc)
}

// GetIncident handles GET /incidents/:id.
func (h *Handlers) GetIncident(c *gin.Context) {
	inc, err := h.engine.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

// AnalyzeIncident handles POST /incidents/:id/analyze.
func (h *Handlers) AnalyzeIncident(c *gin.Context) {
	a, err := h.engine.AnalyzeIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// LatestAnalysis handles GET /incidents/:id/analysis.
func (h *Handlers) LatestAnalysis(c *gin.Context) {
	a, err := h.engine.LatestAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// ListRemediations handles GET /incidents/:id/remediations.
func (h *Handlers) ListRemediations(c *gin.Context) {
	list, err := h.engine.ListRemediations(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remediations": nonNil(list)})
}

// ListNotifications handles GET /incidents/:id/notifications.
func (h *Handlers) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.engine.GetIncident(ctx, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	list, err := h.engine.ListNotifications(ctx, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": nonNil(list)})
}

// CreateRemediation handles POST /remediations. With auto_execute set the record is
// returned with its terminal status even when execution failed.
func (h *Handlers) CreateRemediation(c *gin.Context) {
	var req models.NewRemediation
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rem, err := h.engine.CreateRemediation(c.Request.Context(), req)
	if rem == nil {
		abortWithError(c, err)
		return
	}
	body := gin.H{"remediation": rem}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusCreated, body)
}

// GetRemediation handles GET /remediations/:id.
func (h *Handlers) GetRemediation(c *gin.Context) {
	rem, err := h.engine.GetRemediation(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rem)
}

// ListRemediationLogs handles GET /remediations/:id/logs.
func (h *Handlers) ListRemediationLogs(c *gin.Context) {
	logs, err := h.engine.ListRemediationLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": nonNil(logs)})
}

// ExecuteRemediation handles POST /remediations/:id/execute. With async=true the id is
// queued on the worker pool and 202 is returned.
func (h *Handlers) ExecuteRemediation(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		h.submit(c, id)
		return
	}

	summary, err := h.engine.ExecuteRemediation(ctx, id)
	if summary != nil {
		resp := ExecuteResponse{ExecutionSummary: summary}
		if err != nil {
			resp.Error = err.Error()
		}
		c.JSON(http.StatusOK, resp)
		return
	}
	abortWithError(c, err)
}

func (h *Handlers) submit(c *gin.Context, id string) {
	if h.pool == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "async execution is not enabled", Kind: string(errs.KindInternal)})
		return
	}
	rem, err := h.engine.GetRemediation(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if rem.Status != models.RemediationPending {
		abortWithError(c, errs.State("remediation %s is %s, not pending", id, rem.Status))
		return
	}
	if err := h.pool.Submit(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrPoolFull) || errors.Is(err, pipeline.ErrPoolClosed) {
			status = http.StatusServiceUnavailable
		}
		c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Kind: string(errs.KindInternal)})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"remediation_id": id, "status": "queued"})
}

// EvaluateAlerts handles POST /alerts/evaluate.
func (h *Handlers) EvaluateAlerts(c *gin.Context) {
	if h.evaluator == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "alert evaluation is not enabled", Kind: string(errs.KindInternal)})
		return
	}
	fired, err := h.evaluator.EvaluateAllRules(c.Request.Context())
	body := gin.H{"incidents": nonNil(fired)}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// RunDiagnostics handles POST /nodes/:id/diagnostics.
func (h *Handlers) RunDiagnostics(c *gin.Context) {
	nodeID := c.Param("id")
	results, err := h.engine.RunDiagnostics(c.Request.Context(), nodeID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"node_id": nodeID, "results": results})
}

// Templates handles GET /templates.
func (h *Handlers) Templates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": h.engine.Templates()})
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
