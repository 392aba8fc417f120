package notifyhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"autoremedy/pkg/models"
)

// Config configures the webhook writer. When Channels is set, only notifications for
// those channels are posted.
type Config struct {
	URL      string
	Timeout  time.Duration
	Headers  map[string]string
	Channels []string
}

// Writer posts notification batches to a webhook.
type Writer struct {
	url      string
	headers  map[string]string
	channels map[string]struct{}
	timeout  time.Duration
	client   *http.Client
}

type payload struct {
	Notifications []*models.Notification `json:"notifications"`
}

// NewWriter creates a webhook writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notification webhook URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var channels map[string]struct{}
	if len(cfg.Channels) > 0 {
		channels = make(map[string]struct{}, len(cfg.Channels))
		for _, ch := range cfg.Channels {
			channels[ch] = struct{}{}
		}
	}
	return &Writer{
		url:      cfg.URL,
		headers:  cfg.Headers,
		channels: channels,
		timeout:  timeout,
		client:   &http.Client{},
	}, nil
}

// WriteNotifications posts the batch as one JSON document.
func (w *Writer) WriteNotifications(notes []*models.Notification) error {
	batch := w.filter(notes)
	if len(batch) == 0 {
		return nil
	}

	body, err := json.Marshal(payload{Notifications: batch})
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status %s", resp.Status)
	}
	return nil
}

func (w *Writer) filter(notes []*models.Notification) []*models.Notification {
	out := make([]*models.Notification, 0, len(notes))
	for _, n := range notes {
		if n == nil {
			continue
		}
		if w.channels != nil {
			if _, ok := w.channels[n.Channel]; !ok {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
