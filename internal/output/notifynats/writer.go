// Package notifynats publishes notification records to NATS, one subject per channel.
package notifynats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"autoremedy/internal/logger"
	"autoremedy/pkg/models"
)

// Config configures the NATS publisher.
type Config struct {
	URL           string
	SubjectPrefix string
	Name          string
	Token         string
	Timeout       time.Duration
}

type publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// Writer publishes each notification to <prefix>.<channel>.
type Writer struct {
	conn    publisher
	prefix  string
	timeout time.Duration
}

// NewWriter connects to NATS.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "autoremedy"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	logger.Infof("NATS notification publisher connected: %s", nc.ConnectedUrl())
	return newWriter(nc, cfg.SubjectPrefix, cfg.Timeout), nil
}

func newWriter(conn publisher, prefix string, timeout time.Duration) *Writer {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "autoremedy.notifications"
	}
	return &Writer{conn: conn, prefix: prefix, timeout: timeout}
}

// Subject returns the subject a notification for channel is published on.
func (w *Writer) Subject(channel string) string {
	ch := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(channel)
	if ch == "" {
		ch = "default"
	}
	return w.prefix + "." + ch
}

// WriteNotifications publishes the batch and waits for the server to acknowledge it.
func (w *Writer) WriteNotifications(notes []*models.Notification) error {
	sent := 0
	for _, n := range notes {
		if n == nil {
			continue
		}
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification %s: %w", n.ID, err)
		}
		if err := w.conn.Publish(w.Subject(n.Channel), data); err != nil {
			return fmt.Errorf("publish notification %s: %w", n.ID, err)
		}
		sent++
	}
	if sent == 0 {
		return nil
	}
	if err := w.conn.FlushTimeout(w.timeout); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

// Close closes the connection.
func (w *Writer) Close() error {
	if w.conn != nil {
		w.conn.Close()
	}
	return nil
}
