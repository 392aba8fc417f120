package models

import "time"

// Notification is a queued delivery request for one channel. Delivery happens outside
// the engine.
type Notification struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	Severity   Severity  `json:"severity,omitempty"`
	Title      string    `json:"title,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationPending is the status of a notification awaiting delivery.
const NotificationPending = "pending"
