package logclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"autoremedy/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer inserts remediation logs into ClickHouse via HTTP JSONEachRow.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// row is the table layout: ts is DateTime64(3), status LowCardinality(String).
type row struct {
	ID            string `json:"id"`
	RemediationID string `json:"remediation_id"`
	Action        string `json:"action"`
	Status        string `json:"status"`
	Output        string `json:"output"`
	Error         string `json:"error"`
	TS            string `json:"ts"`
}

const tsLayout = "2006-01-02 15:04:05.000"

// NewWriter creates a ClickHouse writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "remediation_logs"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	endpoint := strings.TrimRight(cfg.URL, "/") + "/?query=" + url.QueryEscape(q)

	headers := make(map[string]string, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteLogs inserts a batch of remediation logs.
func (w *Writer) WriteLogs(logs []*models.RemediationLog) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	n := 0
	for _, entry := range logs {
		if entry == nil {
			continue
		}
		r := row{
			ID:            entry.ID,
			RemediationID: entry.RemediationID,
			Action:        entry.Action,
			Status:        string(entry.Status),
			Output:        entry.Output,
			Error:         entry.Error,
			TS:            entry.Timestamp.UTC().Format(tsLayout),
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to marshal remediation log: %w", err)
		}
		n++
	}
	if n == 0 {
		return nil
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse insert failed with status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Close releases idle connections.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func quoteIdent(v string) string {
	return "`" + strings.ReplaceAll(v, "`", "") + "`"
}
