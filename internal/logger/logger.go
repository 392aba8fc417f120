package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	base    = zerolog.Nop()
	enabled bool
)

// Init initializes the global logger. With console set, a human-readable writer is
// added next to the JSON log file.
func Init(on bool, levelStr, logFile string, console bool) error {
	if !on {
		setBase(zerolog.Nop(), false)
		return nil
	}

	var writers []io.Writer
	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
	}

	if console || len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"})
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(levelStr)).
		With().Timestamp().Logger()
	setBase(l, true)
	return nil
}

// SetOutput routes logs to w at the given level. Used by tests.
func SetOutput(w io.Writer, levelStr string) {
	setBase(zerolog.New(w).Level(parseLevel(levelStr)).With().Timestamp().Logger(), true)
}

func setBase(l zerolog.Logger, on bool) {
	mu.Lock()
	base = l
	enabled = on
	mu.Unlock()
}

func current() (zerolog.Logger, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return base, enabled
}

func parseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with a component field.
func Component(name string) zerolog.Logger {
	l, _ := current()
	return l.With().Str("component", name).Logger()
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Debug().Msgf(format, args...)
	}
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Info().Msgf(format, args...)
	}
}

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Warn().Msgf(format, args...)
	}
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	if l, ok := current(); ok {
		l.Error().Msgf(format, args...)
	}
}
