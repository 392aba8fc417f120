// Package store defines the persistence unit of work used by the orchestrator.
package store

import (
	"context"
	"time"

	"autoremedy/pkg/models"
)

// Store runs units of work. All writes made inside fn commit together or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of operations available inside a unit of work. Lookups of missing
// records return an errs.KindNotFound error; failed compare-and-set transitions return
// an errs.KindState error.
type Tx interface {
	InsertIncident(inc *models.Incident) error
	GetIncident(id string) (*models.Incident, error)
	// ResolveIncident sets status resolved and resolved_at. An already resolved
	// incident keeps its first resolved_at.
	ResolveIncident(id string, at time.Time) error

	InsertRemediation(rem *models.Remediation) error
	GetRemediation(id string) (*models.Remediation, error)
	ListRemediations(incidentID string) ([]models.Remediation, error)
	// ClaimRemediation moves a pending remediation to in_progress.
	ClaimRemediation(id string, at time.Time) (*models.Remediation, error)
	// CompleteRemediation moves an in_progress remediation to a terminal status.
	CompleteRemediation(id string, status models.RemediationStatus, result models.ExecutionResult, at time.Time) (*models.Remediation, error)

	AppendRemediationLog(entry *models.RemediationLog) error
	ListRemediationLogs(remediationID string) ([]models.RemediationLog, error)

	InsertAnalysis(a *models.Analysis) error
	LatestAnalysis(incidentID string) (*models.Analysis, error)

	InsertNotification(n *models.Notification) error
	ListNotifications(incidentID string) ([]models.Notification, error)

	UpsertNode(node models.InfrastructureNode) error
	GetNode(id string) (*models.InfrastructureNode, error)
	ListNodes() ([]models.InfrastructureNode, error)

	UpsertAlertRule(rule models.AlertRule) error
	ListAlertRules(enabledOnly bool) ([]models.AlertRule, error)

	InsertMetric(sample models.MetricSample) error
	// RecentMetrics returns samples at or after since, newest first, at most limit.
	RecentMetrics(nodeID, metricName string, since time.Time, limit int) ([]models.MetricSample, error)
}

// Metrics adapts a Store to metric reads and batch writes.
type Metrics struct {
	Store Store
}

// RecentMetrics reads samples in a short transaction.
func (m Metrics) RecentMetrics(ctx context.Context, nodeID, metricName string, since time.Time, limit int) ([]models.MetricSample, error) {
	var out []models.MetricSample
	err := m.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.RecentMetrics(nodeID, metricName, since, limit)
		return err
	})
	return out, err
}

// WriteMetrics stores a batch of samples.
func (m Metrics) WriteMetrics(samples []*models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	return m.Store.WithTx(context.Background(), func(tx Tx) error {
		for _, s := range samples {
			if s == nil {
				continue
			}
			if err := tx.InsertMetric(*s); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close is a no-op; the underlying store is closed by its owner.
func (m Metrics) Close() error { return nil }
