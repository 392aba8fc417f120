package logjson

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/pkg/models"
)

func TestWriterAppendsLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "remediations.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.WriteLogs([]*models.RemediationLog{
		{ID: "l1", RemediationID: "r1", Action: "restart_service", Status: models.RemediationSuccess, Output: "ok", Timestamp: ts},
		{ID: "l2", RemediationID: "r2", Action: "clear_disk_space", Status: models.RemediationFailed, Error: "timeout", Timestamp: ts},
	}))
	require.NoError(t, w.Close())

	err = w.WriteLogs([]*models.RemediationLog{{ID: "l3"}})
	assert.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)

	var second models.RemediationLog
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "r2", second.RemediationID)
	assert.Equal(t, models.RemediationFailed, second.Status)
	assert.Equal(t, "timeout", second.Error)
	assert.True(t, ts.Equal(second.Timestamp))
}
