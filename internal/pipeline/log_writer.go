package pipeline

import "autoremedy/pkg/models"

// LogWriter mirrors remediation logs to an audit sink.
type LogWriter interface {
	WriteLogs(logs []*models.RemediationLog) error
	Close() error
}
