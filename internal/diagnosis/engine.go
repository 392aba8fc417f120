// Package diagnosis maps an incident context to a diagnosis and ranked remediation actions.
package diagnosis

import (
	"context"

	"autoremedy/pkg/models"
)

// IncidentContext is the input snapshot given to an engine.
type IncidentContext struct {
	Incident models.Incident
	Node     *models.InfrastructureNode
	Metrics  []models.MetricSample
}

// Diagnosis is an engine verdict. Confidence is in [0,1]; RecommendedActions are ordered
// by preference and name action templates.
type Diagnosis struct {
	Diagnosis          string   `json:"diagnosis"`
	RecommendedActions []string `json:"recommended_actions"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
}

// Engine produces a diagnosis for an incident.
type Engine interface {
	Name() string
	Diagnose(ctx context.Context, ic IncidentContext) (Diagnosis, error)
}

// Snapshot renders the context as the input map stored with an analysis record.
func (ic IncidentContext) Snapshot() map[string]interface{} {
	inc := map[string]interface{}{
		"title":       ic.Incident.Title,
		"description": ic.Incident.Description,
		"severity":    string(ic.Incident.Severity),
		"source":      ic.Incident.Source,
	}
	out := map[string]interface{}{"incident": inc}
	if ic.Node != nil {
		out["node"] = map[string]interface{}{
			"hostname":  ic.Node.Hostname,
			"node_type": string(ic.Node.NodeType),
			"os_type":   ic.Node.OSType,
		}
	}
	if len(ic.Metrics) > 0 {
		metrics := make([]map[string]interface{}, 0, len(ic.Metrics))
		for _, m := range ic.Metrics {
			metrics = append(metrics, map[string]interface{}{
				"name":      m.MetricName,
				"value":     m.Value,
				"unit":      m.Unit,
				"timestamp": m.Timestamp,
			})
		}
		out["metrics"] = metrics
	}
	return out
}
