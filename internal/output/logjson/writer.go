package logjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"autoremedy/internal/logger"
	"autoremedy/pkg/models"
)

// Writer mirrors remediation logs to a JSON lines audit file.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewWriter opens the audit file for appending.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	logger.Infof("Remediation audit log initialized: %s", path)
	return &Writer{file: f, encoder: json.NewEncoder(f)}, nil
}

// WriteLogs appends one line per log entry.
func (w *Writer) WriteLogs(logs []*models.RemediationLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("audit file is closed")
	}
	for _, entry := range logs {
		if entry == nil {
			continue
		}
		if err := w.encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode remediation log %s: %w", entry.ID, err)
		}
	}
	return nil
}

// Close closes the audit file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
