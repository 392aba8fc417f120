package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/internal/backend"
	"autoremedy/internal/diagnosis"
	"autoremedy/internal/metrics"
	"autoremedy/internal/orchestrator"
	"autoremedy/internal/pipeline"
	"autoremedy/internal/store"
	"autoremedy/internal/templates"
	"autoremedy/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubBackend struct {
	result models.ExecutionResult
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Execute(context.Context, models.InfrastructureNode, models.ActionTemplate, map[string]string) (models.ExecutionResult, error) {
	return b.result, nil
}

type stubPool struct {
	ids []string
	err error
}

func (p *stubPool) Submit(id string) error {
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

type stubEvaluator struct {
	fired []*models.Incident
}

func (e *stubEvaluator) EvaluateAllRules(context.Context) ([]*models.Incident, error) {
	return e.fired, nil
}

type testServer struct {
	router  *gin.Engine
	orch    *orchestrator.Orchestrator
	backend *stubBackend
	pool    *stubPool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemoryStore(0)
	require.NoError(t, st.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.UpsertNode(models.NewNode(models.InfrastructureNode{
			ID: "web-1", Hostname: "web-1", IPAddress: "10.0.0.5", NodeType: models.NodeServer, OSType: "linux",
		}))
	}))
	b := &stubBackend{result: models.ExecutionResult{Success: true, Output: "restarted"}}
	orch, err := orchestrator.New(orchestrator.Deps{
		Store:      st,
		Templates:  templates.Default(),
		Dispatcher: backend.NewDispatcher(b, b, b),
		Engine:     diagnosis.NewKeywordEngine(),
	}, orchestrator.Config{AutoRemediation: false})
	require.NoError(t, err)

	pool := &stubPool{}
	h := NewHandlers(orch, &stubEvaluator{}, pool)
	return &testServer{router: NewRouter(h, metrics.New().Handler()), orch: orch, backend: b, pool: pool}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/incidents", models.NewIncident{
		Title: "nginx down", Description: "service down on web-1", Severity: "high", Source: "api", NodeID: "web-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inc := decode[models.Incident](t, w)
	assert.Equal(t, models.IncidentOpen, inc.Status)

	w = s.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/analyze", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	analysis := decode[models.Analysis](t, w)
	assert.Equal(t, "Service availability issue", analysis.Diagnosis)

	w = s.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID+"/analysis", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/remediations", models.NewRemediation{
		IncidentID: inc.ID, ActionType: "restart_service", TargetNodeID: "web-1",
		Parameters: map[string]string{"service_name": "nginx"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Remediation models.Remediation `json:"remediation"`
	}](t, w)
	remID := created.Remediation.ID
	assert.Equal(t, models.RemediationPending, created.Remediation.Status)

	w = s.do(t, http.MethodPost, "/api/v1/remediations/"+remID+"/execute", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[ExecuteResponse](t, w)
	assert.Equal(t, models.RemediationSuccess, summary.Status)
	assert.Empty(t, summary.Error)

	w = s.do(t, http.MethodPost, "/api/v1/remediations/"+remID+"/execute", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "state", decode[ErrorResponse](t, w).Kind)

	w = s.do(t, http.MethodGet, "/api/v1/remediations/"+remID+"/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[struct {
		Logs []models.RemediationLog `json:"logs"`
	}](t, w)
	assert.Len(t, logs.Logs, 1)

	w = s.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.IncidentResolved, decode[models.Incident](t, w).Status)

	w = s.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID+"/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[struct {
		Notifications []models.Notification `json:"notifications"`
	}](t, w)
	assert.Len(t, notes.Notifications, 2)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/incidents", models.NewIncident{Title: "x", Severity: "urgent"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/incidents", map[string]string{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/incidents/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Kind)

	w = s.do(t, http.MethodPost, "/api/v1/remediations", models.NewRemediation{ActionType: "reboot_universe", TargetNodeID: "web-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[ErrorResponse](t, w).Kind)

	w = s.do(t, http.MethodPost, "/api/v1/remediations/missing/execute", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFailedExecutionReturnsSummary(t *testing.T) {
	s := newTestServer(t)
	s.backend.result = models.ExecutionResult{Success: false, Error: "unit not found"}

	rem, err := s.orch.CreateRemediation(context.Background(), models.NewRemediation{
		ActionType: "restart_service", TargetNodeID: "web-1", Parameters: map[string]string{"service_name": "nginx"},
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/v1/remediations/"+rem.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[ExecuteResponse](t, w)
	assert.Equal(t, models.RemediationFailed, summary.Status)
	assert.Equal(t, "unit not found", summary.Result.Error)
}

func TestAsyncExecuteQueuesOnPool(t *testing.T) {
	s := newTestServer(t)
	rem, err := s.orch.CreateRemediation(context.Background(), models.NewRemediation{
		ActionType: "restart_service", TargetNodeID: "web-1", Parameters: map[string]string{"service_name": "nginx"},
	})
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/v1/remediations/"+rem.ID+"/execute?async=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{rem.ID}, s.pool.ids)

	s.pool.err = pipeline.ErrPoolFull
	w = s.do(t, http.MethodPost, "/api/v1/remediations/"+rem.ID+"/execute?async=true", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNodeDiagnostics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/nodes/web-1/diagnostics", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		NodeID  string                            `json:"node_id"`
		Results map[string]models.ExecutionResult `json:"results"`
	}](t, w)
	assert.Equal(t, "web-1", body.NodeID)
	require.Len(t, body.Results, len(templates.ServerChecks))
	for _, check := range templates.ServerChecks {
		assert.True(t, body.Results[check].Success, check)
		assert.Equal(t, "stub", body.Results[check].Backend, check)
	}

	w = s.do(t, http.MethodPost, "/api/v1/nodes/nope/diagnostics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRemediationMissingParameters(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/remediations", models.NewRemediation{ActionType: "restart_service", TargetNodeID: "web-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "validation", resp.Kind)
	assert.Contains(t, resp.Error, "service_name")
}

func TestTemplatesAndAlerts(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Templates []models.ActionTemplate `json:"templates"`
	}](t, w)
	assert.Len(t, body.Templates, len(templates.Builtin()))

	w = s.do(t, http.MethodPost, "/api/v1/alerts/evaluate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"incidents":[]}`, w.Body.String())
}
