package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.input), "level %q", tt.input)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "info",
		FilePath:      filepath.Join(dir, "server.log"),
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("search_complete", slog.String("method", "lexical"), slog.Int("hits", 3))
	cleanup()

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"search_complete"`)
	assert.Contains(t, string(data), `"method":"lexical"`)
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	// Force the threshold low to trigger rotation without writing megabytes.
	w.maxSize = 64

	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "rotated file should exist")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
	assert.Contains(t, cfg.FilePath, "server.log")
}
