package models

import "time"

// RemediationStatus is the lifecycle state of a remediation.
// Legal transitions: pending -> in_progress -> success|failed.
type RemediationStatus string

const (
	RemediationPending    RemediationStatus = "pending"
	RemediationInProgress RemediationStatus = "in_progress"
	RemediationSuccess    RemediationStatus = "success"
	RemediationFailed     RemediationStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RemediationStatus) Terminal() bool {
	return s == RemediationSuccess || s == RemediationFailed
}

// Remediation binds one action template to one target node.
type Remediation struct {
	ID           string            `json:"id"`
	IncidentID   string            `json:"incident_id,omitempty"`
	ActionType   string            `json:"action_type"`
	TargetNodeID string            `json:"target_node_id"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	Status       RemediationStatus `json:"status"`
	Result       *ExecutionResult  `json:"result,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// NewRemediation carries the caller-supplied fields of a remediation.
type NewRemediation struct {
	IncidentID   string            `json:"incident_id,omitempty"`
	ActionType   string            `json:"action_type" binding:"required"`
	TargetNodeID string            `json:"target_node_id" binding:"required"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	AutoExecute  bool              `json:"auto_execute"`
}

// RemediationLog is an append-only record of one execution attempt.
type RemediationLog struct {
	ID            string            `json:"id"`
	RemediationID string            `json:"remediation_id"`
	Action        string            `json:"action"`
	Status        RemediationStatus `json:"status"`
	Output        string            `json:"output"`
	Error         string            `json:"error,omitempty"`
	Timestamp     time.Time         `json:"ts"`
}
