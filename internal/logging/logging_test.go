package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{" Error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestForService(t *testing.T) {
	Init()
	logger := ForService("oracle")
	require.NotNil(t, logger)
	logger.Info("service logger works")
}

func TestNewFileLogger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "service.log")

	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelDebug)

	logger, closer, err := NewFileLogger(path, "test-service", &levelVar)
	require.NoError(t, err)
	require.NotNil(t, logger)
	t.Cleanup(func() { _ = closer() })

	logger.Info("hello", "key", "value")

	// Directory must have been created for lumberjack
	assert.DirExists(t, filepath.Dir(path))
}
