package diagnosis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/pkg/models"
)

func incidentWith(desc string) IncidentContext {
	return IncidentContext{Incident: models.Incident{Title: "t", Description: desc, Severity: models.SeverityHigh}}
}

func TestKeywordEngineTable(t *testing.T) {
	e := NewKeywordEngine()
	cases := []struct {
		desc       string
		diagnosis  string
		actions    []string
		confidence float64
	}{
		{"Disk usage 97% on /var", "Disk space issue detected", []string{"clear_disk_space", "expand_volume"}, 0.85},
		{"Storage array degraded", "Disk space issue detected", []string{"clear_disk_space", "expand_volume"}, 0.85},
		{"RAM exhausted", "Memory pressure detected", []string{"restart_service", "kill_process"}, 0.80},
		{"CPU pegged at 100%", "High CPU utilization", []string{"kill_process", "scale_service"}, 0.75},
		{"nginx is down", "Service availability issue", []string{"restart_service", "restart_container"}, 0.90},
		{"Connection refused from upstream", "Network connectivity issue", []string{"restart_service", "update_firewall"}, 0.70},
		{"disk and memory both low", "Disk space issue detected", []string{"clear_disk_space", "expand_volume"}, 0.85},
		{"something odd", "Unknown issue", []string{}, 0.5},
	}
	for _, tc := range cases {
		d, err := e.Diagnose(context.Background(), incidentWith(tc.desc))
		require.NoError(t, err)
		assert.Equal(t, tc.diagnosis, d.Diagnosis, tc.desc)
		assert.Equal(t, tc.actions, d.RecommendedActions, tc.desc)
		assert.InDelta(t, tc.confidence, d.Confidence, 1e-9, tc.desc)
	}
}

const dbPoolRule = `title: Database connection pool exhausted
id: db-pool-exhausted
description: Application reports a saturated connection pool
level: high
tags:
  - remediation.restart_database
  - remediation.restart_service
logsource:
  product: autoremedy
detection:
  selection:
    description|contains: 'connection pool'
  condition: selection
`

const certRule = `title: Expiring certificate
id: cert-expiry
level: low
logsource:
  product: autoremedy
detection:
  selection:
    source: cert_monitor
  condition: selection
`

func writeRules(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01-db.yml"), []byte(dbPoolRule), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02-cert.yaml"), []byte(certRule), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("title: [unterminated"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))
	return dir
}

func TestSigmaEngineMatchesRule(t *testing.T) {
	e, stats, err := NewSigmaEngine(writeRules(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 2, stats.Loaded)
	assert.Equal(t, 1, stats.SkippedInvalid)

	d, err := e.Diagnose(context.Background(), incidentWith("orders-api: connection pool exhausted"))
	require.NoError(t, err)
	assert.Equal(t, "Database connection pool exhausted", d.Diagnosis)
	assert.Equal(t, []string{"restart_database", "restart_service"}, d.RecommendedActions)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	assert.Contains(t, d.Reasoning, "db-pool-exhausted")
}

func TestSigmaEngineMatchesSourceField(t *testing.T) {
	e, _, err := NewSigmaEngine(writeRules(t), nil)
	require.NoError(t, err)

	ic := incidentWith("cert for api.example.com expires in 3 days")
	ic.Incident.Source = "cert_monitor"
	d, err := e.Diagnose(context.Background(), ic)
	require.NoError(t, err)
	assert.Equal(t, "Expiring certificate", d.Diagnosis)
	assert.Empty(t, d.RecommendedActions)
	assert.InDelta(t, 0.55, d.Confidence, 1e-9)
}

func TestSigmaEngineFallsBack(t *testing.T) {
	e, _, err := NewSigmaEngine(writeRules(t), nil)
	require.NoError(t, err)

	d, err := e.Diagnose(context.Background(), incidentWith("disk full on /data"))
	require.NoError(t, err)
	assert.Equal(t, "Disk space issue detected", d.Diagnosis)
	assert.Equal(t, "sigma", e.Name())
}

func TestNewSigmaEngineRejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, _, err := NewSigmaEngine(path, nil)
	assert.Error(t, err)
}

func TestSnapshotIncludesNodeAndMetrics(t *testing.T) {
	node := models.NewNode(models.InfrastructureNode{ID: "web-1", Hostname: "web-1", NodeType: models.NodeServer, OSType: "linux"})
	ic := IncidentContext{
		Incident: models.Incident{Title: "CPU", Description: "cpu high", Severity: models.SeverityCritical},
		Node:     &node,
		Metrics:  []models.MetricSample{{NodeID: "web-1", MetricName: "cpu_usage", Value: 97}},
	}
	snap := ic.Snapshot()
	assert.Contains(t, snap, "incident")
	assert.Contains(t, snap, "node")
	assert.Len(t, snap["metrics"], 1)
}
