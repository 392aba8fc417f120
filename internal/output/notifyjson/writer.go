package notifyjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"autoremedy/internal/logger"
	"autoremedy/pkg/models"
)

// Delivery is one line of the notification outbox file.
type Delivery struct {
	*models.Notification
	QueuedAt time.Time `json:"queued_at"`
}

// Writer appends notification records to a JSON lines outbox consumed by an external
// delivery agent.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	now     func() time.Time
}

// NewWriter opens path for appending, creating parent directories.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create outbox directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox file: %w", err)
	}
	logger.Infof("Notification outbox initialized: %s", path)
	return &Writer{file: f, encoder: json.NewEncoder(f), now: time.Now}, nil
}

// WriteNotifications appends one line per notification.
func (w *Writer) WriteNotifications(notes []*models.Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	queued := w.now().UTC()
	for _, n := range notes {
		if n == nil {
			continue
		}
		if err := w.encoder.Encode(Delivery{Notification: n, QueuedAt: queued}); err != nil {
			return fmt.Errorf("failed to encode notification %s: %w", n.ID, err)
		}
	}
	return nil
}

// Close closes the outbox file.
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
