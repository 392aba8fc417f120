package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/config"
	"autoremedy/internal/errs"
	"autoremedy/pkg/models"
)

const testInventory = `
nodes:
  - id: web-1
    hostname: web-1.prod
    ip_address: 10.0.0.5
    node_type: server
    os_type: ubuntu
alert_rules:
  - id: web-cpu
    name: High CPU
    node_id: web-1
    metric_name: cpu_usage
    condition: ">"
    threshold: 90
    severity: high
`

func TestApplyDefaultsProducesValidConfig(t *testing.T) {
	cfg := &config.Config{}
	applyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	ar := cfg.AutoRemedy
	assert.Equal(t, 300*time.Second, ar.Engine.RemediationTimeout)
	assert.Equal(t, 10, ar.Engine.MaxConcurrent)
	assert.Equal(t, 40, ar.Engine.QueueSize)
	assert.True(t, ar.Engine.AutoRemediationEnabled())
	assert.Equal(t, 22, ar.SSH.Port)
	assert.Equal(t, 5985, ar.WinRM.Port)
	assert.Equal(t, "keyword", ar.Diagnosis.Engine)
	assert.Equal(t, "memory", ar.Store.Driver)
	assert.Equal(t, "store", ar.MetricsInput.Series.Backend)
	assert.Equal(t, "file", ar.Audit.Mode)
}

func TestApplyDefaultsWinRMHTTPSPort(t *testing.T) {
	cfg := &config.Config{}
	cfg.AutoRemedy.WinRM.HTTPS = true
	applyDefaults(cfg)
	assert.Equal(t, 5986, cfg.AutoRemedy.WinRM.Port)
}

func TestOrchestratorConfigOverridesTiers(t *testing.T) {
	off := false
	cfg := &config.Config{}
	cfg.AutoRemedy.Engine.AutoRemediation = &off
	cfg.AutoRemedy.Severity = map[string]config.TierConfig{
		"medium": {AutoRemediate: true, Channels: []string{"slack"}},
	}
	applyDefaults(cfg)

	oc := orchestratorConfig(cfg.AutoRemedy)
	assert.False(t, oc.AutoRemediation)
	assert.True(t, oc.Tiers[models.SeverityMedium].AutoRemediate)
	assert.Equal(t, []string{"slack"}, oc.Tiers[models.SeverityMedium].Channels)
	assert.Len(t, oc.Tiers[models.SeverityCritical].Channels, 4)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	invPath := filepath.Join(dir, "inventory.yml")
	require.NoError(t, os.WriteFile(invPath, []byte(testInventory), 0o600))

	cfg := &config.Config{}
	cfg.AutoRemedy.Inventory.Path = invPath
	cfg.AutoRemedy.Notifications.File.Path = filepath.Join(dir, "notifications.jsonl")
	cfg.AutoRemedy.Audit.File.Path = filepath.Join(dir, "audit.jsonl")
	applyDefaults(cfg)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildAppSeedsInventoryAndDeliversNotifications(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := buildApp(ctx, cfg)
	require.NoError(t, err)

	inc, err := a.orchestrator.CreateIncident(ctx, models.NewIncident{
		Title:       "Queue backlog",
		Description: "consumer lag growing",
		Severity:    "medium",
		Source:      "test",
		NodeID:      "web-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IncidentOpen, inc.Status)

	_, err = a.orchestrator.CreateRemediation(ctx, models.NewRemediation{ActionType: "restart_service", TargetNodeID: "db-9"})
	assert.True(t, errs.IsNotFound(err))

	fired, err := a.evaluator.EvaluateAllRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, fired)

	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.AutoRemedy.Notifications.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), inc.ID)
	assert.Contains(t, string(data), "email")
}

func TestExecuteWithoutCredentialsFails(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := buildApp(ctx, cfg)
	require.NoError(t, err)

	rem, err := a.orchestrator.CreateRemediation(ctx, models.NewRemediation{
		ActionType:   "restart_service",
		TargetNodeID: "web-1",
		Parameters:   map[string]string{"service_name": "nginx"},
		AutoExecute:  true,
	})
	require.Error(t, err)
	require.NotNil(t, rem)
	assert.Equal(t, models.RemediationFailed, rem.Status)
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.AutoRemedy.Audit.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), rem.ID)
}

func TestDiagnoseCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoremedy.yml")
	require.NoError(t, os.WriteFile(path, []byte("autoremedy:\n  diagnosis:\n    engine: keyword\n"), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"diagnose", "--config", path, "--description", "Disk full on /var"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configArg = ""
	})
	require.NoError(t, rootCmd.Execute())

	var got struct {
		Engine             string   `json:"engine"`
		Diagnosis          string   `json:"diagnosis"`
		RecommendedActions []string `json:"recommended_actions"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "keyword", got.Engine)
	assert.Equal(t, "Disk space issue detected", got.Diagnosis)
	assert.Equal(t, []string{"clear_disk_space", "expand_volume"}, got.RecommendedActions)
}
