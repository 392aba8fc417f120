// Package rawjson archives raw metric payloads for replay.
package rawjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"autoremedy/internal/logger"
)

// Writer appends raw payloads, one compacted JSON document per line. Payloads that
// are not valid JSON are written as JSON strings.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  bytes.Buffer
}

// NewWriter opens path for appending.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	logger.Infof("Raw metric archive initialized: %s", path)
	return &Writer{file: f}, nil
}

// WriteRawMessages appends a batch of payloads with a single write.
func (w *Writer) WriteRawMessages(messages [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Reset()
	for _, msg := range messages {
		if len(bytes.TrimSpace(msg)) == 0 {
			continue
		}
		if err := json.Compact(&w.buf, msg); err != nil {
			quoted, _ := json.Marshal(string(msg))
			w.buf.Write(quoted)
		}
		w.buf.WriteByte('\n')
	}
	if w.buf.Len() == 0 {
		return nil
	}
	if _, err := w.file.Write(w.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write raw payloads: %w", err)
	}
	return nil
}

// Close closes the archive file.
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
