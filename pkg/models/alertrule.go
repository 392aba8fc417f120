package models

import "time"

// AlertRule describes a threshold condition over one node metric.
type AlertRule struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	NodeID      string   `json:"node_id" yaml:"node_id"`
	MetricName  string   `json:"metric_name" yaml:"metric_name"`
	Condition   string   `json:"condition" yaml:"condition"` // > | < | ==
	Threshold   float64  `json:"threshold" yaml:"threshold"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
}

// Matches reports whether value satisfies the rule condition. ok is false for an
// unknown condition operator.
func (r AlertRule) Matches(value float64) (matched bool, ok bool) {
	switch r.Condition {
	case ">":
		return value > r.Threshold, true
	case "<":
		return value < r.Threshold, true
	case "==":
		return value == r.Threshold, true
	default:
		return false, false
	}
}

// MetricSample is one observed value of a node metric.
type MetricSample struct {
	NodeID     string    `json:"node_id"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Timestamp  time.Time `json:"ts"`
}
