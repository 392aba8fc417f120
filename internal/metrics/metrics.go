// Package metrics holds the engine's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups engine counters and histograms. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	incidentsCreated   *prometheus.CounterVec
	remediations       *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	autoRemediation    *prometheus.CounterVec
	alertsFired        *prometheus.CounterVec
	notificationsSent  *prometheus.CounterVec
	analysesRecorded   *prometheus.CounterVec
	metricSamplesTotal prometheus.Counter
}

// New registers the engine instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		incidentsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoremedy_incidents_created_total",
			Help: "Incidents created by severity and source",
		}, []string{"severity", "source"}),
		remediations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoremedy_remediations_total",
			Help: "Remediation executions by action, backend and terminal status",
		}, []string{"action", "backend", "status"}),
		executionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoremedy_execution_duration_seconds",
			Help:    "Backend execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
		}, []string{"backend"}),
		autoRemediation: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoremedy_auto_remediation_total",
			Help: "Auto-remediation attempts by outcome",
		}, []string{"outcome"}),
		alertsFired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoremedy_alerts_fired_total",
			Help: "Alert rules that produced an incident",
		}, []string{"rule_id"}),
		notificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoremedy_notifications_total",
			Help: "Notification records handed to the sink by channel and result",
		}, []string{"channel", "result"}),
		analysesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoremedy_analyses_total",
			Help: "Analysis records by engine",
		}, []string{"engine"}),
		metricSamplesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "autoremedy_metric_samples_total",
			Help: "Metric samples ingested",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncidentCreated counts one incident.
func (m *Metrics) IncidentCreated(severity, source string) {
	if m == nil {
		return
	}
	m.incidentsCreated.WithLabelValues(severity, source).Inc()
}

// RemediationFinished records a terminal remediation and its backend duration.
func (m *Metrics) RemediationFinished(action, backend, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.remediations.WithLabelValues(action, backend, status).Inc()
	if backend != "" {
		m.executionDuration.WithLabelValues(backend).Observe(took.Seconds())
	}
}

// AutoRemediation counts an auto path outcome: triggered, skipped, rate_limited or error.
func (m *Metrics) AutoRemediation(outcome string) {
	if m == nil {
		return
	}
	m.autoRemediation.WithLabelValues(outcome).Inc()
}

// AlertFired counts an incident synthesized by a rule.
func (m *Metrics) AlertFired(ruleID string) {
	if m == nil {
		return
	}
	m.alertsFired.WithLabelValues(ruleID).Inc()
}

// NotificationDelivered counts notification records handed to the sink.
func (m *Metrics) NotificationDelivered(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.notificationsSent.WithLabelValues(channel, result).Inc()
}

// AnalysisRecorded counts one stored analysis.
func (m *Metrics) AnalysisRecorded(engine string) {
	if m == nil {
		return
	}
	m.analysesRecorded.WithLabelValues(engine).Inc()
}

// MetricSamples counts ingested samples.
func (m *Metrics) MetricSamples(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.metricSamplesTotal.Add(float64(n))
}
