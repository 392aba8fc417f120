package models

import "time"

// Analysis is an immutable diagnosis record linked to an incident. A re-run produces
// a newer record; existing records are never overwritten.
type Analysis struct {
	ID                 string                 `json:"id"`
	IncidentID         string                 `json:"incident_id"`
	AnalysisType       string                 `json:"analysis_type"`
	Diagnosis          string                 `json:"diagnosis"`
	RecommendedActions []string               `json:"recommended_actions"`
	Confidence         float64                `json:"confidence"`
	Reasoning          string                 `json:"reasoning,omitempty"`
	Engine             string                 `json:"engine"`
	Input              map[string]interface{} `json:"input,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}
