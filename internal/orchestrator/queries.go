package orchestrator

import (
	"context"

	"autoremedy/internal/store"
	"autoremedy/pkg/models"
)

// GetIncident returns the stored incident.
func (o *Orchestrator) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	var out *models.Incident
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.GetIncident(id)
		return err
	})
	return out, err
}

// GetRemediation returns the stored remediation.
func (o *Orchestrator) GetRemediation(ctx context.Context, id string) (*models.Remediation, error) {
	var out *models.Remediation
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.GetRemediation(id)
		return err
	})
	return out, err
}

// ListRemediations returns the remediations created for an incident.
func (o *Orchestrator) ListRemediations(ctx context.Context, incidentID string) ([]models.Remediation, error) {
	var out []models.Remediation
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetIncident(incidentID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListRemediations(incidentID)
		return err
	})
	return out, err
}

// ListRemediationLogs returns the execution log of a remediation, oldest first.
func (o *Orchestrator) ListRemediationLogs(ctx context.Context, remediationID string) ([]models.RemediationLog, error) {
	var out []models.RemediationLog
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetRemediation(remediationID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListRemediationLogs(remediationID)
		return err
	})
	return out, err
}

// LatestAnalysis returns the newest analysis of an incident.
func (o *Orchestrator) LatestAnalysis(ctx context.Context, incidentID string) (*models.Analysis, error) {
	var out *models.Analysis
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.LatestAnalysis(incidentID)
		return err
	})
	return out, err
}

// ListNotifications returns the notification records queued for an incident.
func (o *Orchestrator) ListNotifications(ctx context.Context, incidentID string) ([]models.Notification, error) {
	var out []models.Notification
	err := o.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListNotifications(incidentID)
		return err
	})
	return out, err
}

// Templates returns every registered action template.
func (o *Orchestrator) Templates() []models.ActionTemplate {
	return o.templates.All()
}
