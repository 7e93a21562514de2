package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mailverify/backend/internal/config"
)

func TestFromConfigWritesJSONFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "mailverify.log")

	log, err := FromConfig(config.LogConfig{Level: "warn", File: file})
	require.NoError(t, err)

	log.Info("probe started", zap.String("mx", "mx.example.com"))
	log.Warn("probe timed out", zap.String("mx", "mx.example.com"))
	_ = log.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "probe timed out", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "mx.example.com", entry["mx"])
	assert.Equal(t, ServiceName, entry["service"])
}

func TestNewLoggerLevelFallback(t *testing.T) {
	log, err := NewLogger(Config{Level: "verbose"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))

	dev := NewDevelopmentLogger()
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}
