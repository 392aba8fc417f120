package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the incident severity tier.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a severity string.
func ParseSeverity(raw string) (Severity, error) {
	switch s := Severity(strings.ToLower(strings.TrimSpace(raw))); s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, nil
	default:
		return "", fmt.Errorf("unknown severity %q", raw)
	}
}

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
	IncidentFailed   IncidentStatus = "failed"
)

// Incident is an operational problem reported against the infrastructure.
// ResolvedAt is set if and only if Status is IncidentResolved.
type Incident struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    Severity          `json:"severity"`
	Source      string            `json:"source"`
	NodeID      string            `json:"node_id,omitempty"`
	Status      IncidentStatus    `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}

// NewIncident carries the caller-supplied fields of an incident.
type NewIncident struct {
	Title       string            `json:"title" binding:"required"`
	Description string            `json:"description"`
	Severity    string            `json:"severity" binding:"required"`
	Source      string            `json:"source"`
	NodeID      string            `json:"node_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Resolve marks the incident resolved at the given time.
func (i *Incident) Resolve(at time.Time) {
	i.Status = IncidentResolved
	ts := at
	i.ResolvedAt = &ts
}
