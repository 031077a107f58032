package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" info ", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewLogger_TextFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := NewLogger(Options{Level: "warn", Writer: &buf})
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "entity_type", "users")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "entity_type=users")
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := NewLogger(Options{Level: "debug", Format: "json", Writer: &buf})
	defer closer.Close()

	logger.Debug("cycle", "outcome", "committed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "cycle", line["msg"])
	assert.Equal(t, "committed", line["outcome"])
	assert.Equal(t, "DEBUG", line["level"])
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "replica.log")
	logger, closer := NewLogger(Options{File: path, MaxSizeMB: 1})

	logger.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=\"to file\"")
}
