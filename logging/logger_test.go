package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "counsel.log")
	logger, err := New(Options{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	logger.Named("store").Debug("history loaded", zap.String("conversation", "c1"))
	logger.Info("ready")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "history loaded", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "store", entry["logger"])
	assert.Equal(t, "c1", entry["conversation"])
}

func TestLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := New(Options{Level: "WARN", Format: "console", File: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestInvalidOptions(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)

	logger, err := New(Options{})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
