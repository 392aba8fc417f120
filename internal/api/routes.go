package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"autoremedy/internal/logger"
)

// RegisterRoutes mounts the v1 API on group.
func RegisterRoutes(group *gin.RouterGroup, h *Handlers) {
	group.POST("/incidents", h.CreateIncident)
	group.GET("/incidents/:id", h.GetIncident)
	group.POST("/incidents/:id/analyze", h.AnalyzeIncident)
	group.GET("/incidents/:id/analysis", h.LatestAnalysis)
	group.GET("/incidents/:id/remediations", h.ListRemediations)
	group.GET("/incidents/:id/notifications", h.ListNotifications)

	group.POST("/remediations", h.CreateRemediation)
	group.GET("/remediations/:id", h.GetRemediation)
	group.GET("/remediations/:id/logs", h.ListRemediationLogs)
	group.POST("/remediations/:id/execute", h.ExecuteRemediation)

	group.POST("/nodes/:id/diagnostics", h.RunDiagnostics)

	group.POST("/alerts/evaluate", h.EvaluateAlerts)
	group.GET("/templates", h.Templates)
}

// NewRouter builds the full HTTP handler. metrics may be nil.
func NewRouter(h *Handlers, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", h.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	RegisterRoutes(router.Group("/api/v1"), h)
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log := logger.Component("api")
		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
