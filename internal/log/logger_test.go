package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmcdole/reel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), tt.in)
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("shown", "mirror", "10.0.0.1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"mirror":"10.0.0.1"`)
}

func TestSetupLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reel.log")
	logger, err := SetupLogger(&config.LoggingConfig{File: path, Level: "INFO"})
	require.NoError(t, err)

	logger.Info("starting")

	_, err = os.Stat(path)
	require.NoError(t, err)
}
