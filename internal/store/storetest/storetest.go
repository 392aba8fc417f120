// Package storetest holds behaviour checks shared by every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/internal/errs"
	"autoremedy/internal/store"
	"autoremedy/pkg/models"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store.Tx contract.
func Run(t *testing.T, factory Factory) {
	t.Run("IncidentLifecycle", func(t *testing.T) { testIncidentLifecycle(t, factory(t)) })
	t.Run("RemediationCAS", func(t *testing.T) { testRemediationCAS(t, factory(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, factory(t)) })
	t.Run("LogsAnalysesNotifications", func(t *testing.T) { testRecords(t, factory(t)) })
	t.Run("NodesAndRules", func(t *testing.T) { testNodesAndRules(t, factory(t)) })
	t.Run("Metrics", func(t *testing.T) { testMetrics(t, factory(t)) })
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func tx(t *testing.T, s store.Store, fn func(tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), fn))
}

func testIncidentLifecycle(t *testing.T, s store.Store) {
	inc := &models.Incident{
		ID: "inc-1", Title: "Disk", Description: "disk full", Severity: models.SeverityHigh,
		Source: "test", NodeID: "web-1", Status: models.IncidentOpen,
		Metadata: map[string]string{"rule_id": "r1"}, CreatedAt: base,
	}
	tx(t, s, func(tx store.Tx) error { return tx.InsertIncident(inc) })

	tx(t, s, func(tx store.Tx) error {
		got, err := tx.GetIncident("inc-1")
		require.NoError(t, err)
		assert.Equal(t, models.IncidentOpen, got.Status)
		assert.Nil(t, got.ResolvedAt)
		assert.Equal(t, "r1", got.Metadata["rule_id"])
		return tx.ResolveIncident("inc-1", base.Add(time.Minute))
	})

	tx(t, s, func(tx store.Tx) error {
		got, err := tx.GetIncident("inc-1")
		require.NoError(t, err)
		assert.Equal(t, models.IncidentResolved, got.Status)
		require.NotNil(t, got.ResolvedAt)
		assert.True(t, got.ResolvedAt.Equal(base.Add(time.Minute)))

		_, err = tx.GetIncident("missing")
		assert.True(t, errs.IsNotFound(err))
		assert.True(t, errs.IsNotFound(tx.ResolveIncident("missing", base)))
		return tx.ResolveIncident("inc-1", base.Add(time.Hour))
	})

	tx(t, s, func(tx store.Tx) error {
		got, err := tx.GetIncident("inc-1")
		require.NoError(t, err)
		require.NotNil(t, got.ResolvedAt)
		assert.True(t, got.ResolvedAt.Equal(base.Add(time.Minute)), "second resolve keeps %v, got %v", base.Add(time.Minute), got.ResolvedAt)
		return nil
	})
}

func testRemediationCAS(t *testing.T, s store.Store) {
	rem := &models.Remediation{
		ID: "rem-1", IncidentID: "inc-1", ActionType: "restart_service", TargetNodeID: "web-1",
		Parameters: map[string]string{"service_name": "nginx"}, Status: models.RemediationPending, CreatedAt: base,
	}
	tx(t, s, func(tx store.Tx) error { return tx.InsertRemediation(rem) })

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.CompleteRemediation("rem-1", models.RemediationSuccess, models.ExecutionResult{Success: true}, base)
		return err
	})
	assert.True(t, errs.IsState(err), "complete before claim")

	tx(t, s, func(tx store.Tx) error {
		got, err := tx.ClaimRemediation("rem-1", base.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, models.RemediationInProgress, got.Status)
		require.NotNil(t, got.StartedAt)
		return nil
	})

	err = s.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.ClaimRemediation("rem-1", base)
		return err
	})
	assert.True(t, errs.IsState(err), "double claim")

	err = s.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.ClaimRemediation("nope", base)
		return err
	})
	assert.True(t, errs.IsNotFound(err))

	tx(t, s, func(tx store.Tx) error {
		got, err := tx.CompleteRemediation("rem-1", models.RemediationFailed,
			models.ExecutionResult{Success: false, Error: "exit 1", ExitCode: models.ExitCodeOf(1), Backend: "ssh"}, base.Add(2*time.Second))
		require.NoError(t, err)
		assert.Equal(t, models.RemediationFailed, got.Status)
		return nil
	})

	tx(t, s, func(tx store.Tx) error {
		got, err := tx.GetRemediation("rem-1")
		require.NoError(t, err)
		assert.Equal(t, models.RemediationFailed, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, "exit 1", got.Result.Error)
		require.NotNil(t, got.Result.ExitCode)
		assert.Equal(t, 1, *got.Result.ExitCode)
		require.NotNil(t, got.CompletedAt)
		assert.Equal(t, "nginx", got.Parameters["service_name"])

		list, err := tx.ListRemediations("inc-1")
		require.NoError(t, err)
		assert.Len(t, list, 1)
		return nil
	})

	err = s.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.CompleteRemediation("rem-1", models.RemediationSuccess, models.ExecutionResult{Success: true}, base)
		return err
	})
	assert.True(t, errs.IsState(err), "terminal is final")
}

func testRollback(t *testing.T, s store.Store) {
	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		require.NoError(t, tx.InsertIncident(&models.Incident{ID: "inc-rb", Title: "x", Severity: models.SeverityLow, Status: models.IncidentOpen, CreatedAt: base}))
		require.NoError(t, tx.AppendRemediationLog(&models.RemediationLog{ID: "log-rb", RemediationID: "rem-rb", Action: "a", Status: models.RemediationFailed, Timestamp: base}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	tx(t, s, func(tx store.Tx) error {
		_, err := tx.GetIncident("inc-rb")
		assert.True(t, errs.IsNotFound(err))
		logs, err := tx.ListRemediationLogs("rem-rb")
		require.NoError(t, err)
		assert.Empty(t, logs)
		return nil
	})
}

func testRecords(t *testing.T, s store.Store) {
	tx(t, s, func(tx store.Tx) error {
		require.NoError(t, tx.AppendRemediationLog(&models.RemediationLog{ID: "l1", RemediationID: "rem-9", Action: "restart_service", Status: models.RemediationSuccess, Output: "ok", Timestamp: base}))
		require.NoError(t, tx.InsertAnalysis(&models.Analysis{ID: "a1", IncidentID: "inc-9", AnalysisType: "root_cause", Diagnosis: "old", RecommendedActions: []string{"restart_service"}, Confidence: 0.5, Engine: "keyword", CreatedAt: base}))
		require.NoError(t, tx.InsertAnalysis(&models.Analysis{ID: "a2", IncidentID: "inc-9", AnalysisType: "root_cause", Diagnosis: "new", RecommendedActions: []string{"kill_process"}, Confidence: 0.8, Engine: "keyword", Input: map[string]interface{}{"k": "v"}, CreatedAt: base.Add(time.Minute)}))
		require.NoError(t, tx.InsertNotification(&models.Notification{ID: "n1", IncidentID: "inc-9", Channel: "email", Status: models.NotificationPending, CreatedAt: base}))
		return tx.InsertNotification(&models.Notification{ID: "n2", IncidentID: "inc-9", Channel: "slack", Status: models.NotificationPending, CreatedAt: base})
	})

	tx(t, s, func(tx store.Tx) error {
		logs, err := tx.ListRemediationLogs("rem-9")
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "ok", logs[0].Output)

		a, err := tx.LatestAnalysis("inc-9")
		require.NoError(t, err)
		assert.Equal(t, "new", a.Diagnosis)
		assert.Equal(t, []string{"kill_process"}, a.RecommendedActions)

		_, err = tx.LatestAnalysis("inc-none")
		assert.True(t, errs.IsNotFound(err))

		notes, err := tx.ListNotifications("inc-9")
		require.NoError(t, err)
		assert.Len(t, notes, 2)
		return nil
	})
}

func testNodesAndRules(t *testing.T, s store.Store) {
	tx(t, s, func(tx store.Tx) error {
		require.NoError(t, tx.UpsertNode(models.InfrastructureNode{ID: "sw-1", Hostname: "sw-1", IPAddress: "10.0.0.2", NodeType: models.NodeNetworkDevice, OSType: "ios", Metadata: map[string]string{"device_type": "cisco_ios"}}))
		require.NoError(t, tx.UpsertNode(models.InfrastructureNode{ID: "web-1", Hostname: "web-1", IPAddress: "10.0.0.3", NodeType: models.NodeServer, OSType: "ubuntu"}))
		require.NoError(t, tx.UpsertAlertRule(models.AlertRule{ID: "cpu", Name: "CPU", NodeID: "web-1", MetricName: "cpu_usage", Condition: ">", Threshold: 90, Severity: models.SeverityCritical, Enabled: true}))
		return tx.UpsertAlertRule(models.AlertRule{ID: "mem", Name: "Mem", NodeID: "web-1", MetricName: "mem", Condition: ">", Threshold: 90, Severity: models.SeverityLow, Enabled: false})
	})

	tx(t, s, func(tx store.Tx) error {
		sw, err := tx.GetNode("sw-1")
		require.NoError(t, err)
		assert.Equal(t, models.ClassNetworkDevice, sw.Class.Kind)
		assert.Equal(t, models.DeviceFamily("cisco_ios"), sw.Class.Family)

		nodes, err := tx.ListNodes()
		require.NoError(t, err)
		assert.Len(t, nodes, 2)

		_, err = tx.GetNode("nope")
		assert.True(t, errs.IsNotFound(err))

		enabled, err := tx.ListAlertRules(true)
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		assert.Equal(t, "cpu", enabled[0].ID)

		all, err := tx.ListAlertRules(false)
		require.NoError(t, err)
		assert.Len(t, all, 2)
		return nil
	})
}

func testMetrics(t *testing.T, s store.Store) {
	m := store.Metrics{Store: s}
	batch := make([]*models.MetricSample, 0, 8)
	for i := 0; i < 8; i++ {
		batch = append(batch, &models.MetricSample{NodeID: "web-1", MetricName: "cpu_usage", Value: float64(50 + i), Unit: "%", Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	batch = append(batch, &models.MetricSample{NodeID: "web-2", MetricName: "cpu_usage", Value: 99, Timestamp: base.Add(7 * time.Minute)})
	require.NoError(t, m.WriteMetrics(batch))

	got, err := m.RecentMetrics(context.Background(), "web-1", "cpu_usage", base.Add(2*time.Minute), 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 57.0, got[0].Value)
	assert.Equal(t, 53.0, got[4].Value)
	assert.True(t, got[0].Timestamp.Equal(base.Add(7*time.Minute)))

	got, err = m.RecentMetrics(context.Background(), "web-1", "cpu_usage", base.Add(time.Hour), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
