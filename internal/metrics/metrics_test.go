package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.IncidentCreated("critical", "alert_rule")
	m.RemediationFinished("restart_service", "ssh", "success", 1500*time.Millisecond)
	m.AutoRemediation("triggered")
	m.MetricSamples(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.incidentsCreated.WithLabelValues("critical", "alert_rule")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.metricSamplesTotal))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "autoremedy_remediations_total"))
	assert.True(t, strings.Contains(body, `autoremedy_execution_duration_seconds_count{backend="ssh"} 1`))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncidentCreated("low", "api")
	m.RemediationFinished("a", "b", "c", time.Second)
	m.NotificationDelivered("email", true)
	assert.Nil(t, m.Registry())
}
