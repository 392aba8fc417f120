package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutputHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "warn")
	defer setBase(zerolog.Nop(), false)

	Infof("remediation %s started", "r-1")
	assert.Empty(t, buf.String())

	Warnf("remediation %s slow", "r-1")
	assert.Contains(t, buf.String(), "remediation r-1 slow")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "debug")
	defer setBase(zerolog.Nop(), false)

	log := Component("alerts")
	log.Info().Str("rule_id", "cpu-high").Msg("fired")
	assert.Contains(t, buf.String(), `"component":"alerts"`)
	assert.Contains(t, buf.String(), `"rule_id":"cpu-high"`)
}

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	require.NoError(t, Init(true, "info", path, false))
	defer setBase(zerolog.Nop(), false)

	Errorf("boom %d", 42)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "boom 42")
}

func TestDisabledIsSilent(t *testing.T) {
	require.NoError(t, Init(false, "debug", "", true))
	Errorf("never written")
	_, on := current()
	assert.False(t, on)
}
