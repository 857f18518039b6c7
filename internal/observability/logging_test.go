package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCycle(t *testing.T) {
	ctx := WithCycle(context.Background(), "cycle-1", "local", "sync")
	lc := GetContext(ctx)
	assert.Equal(t, LogContext{CycleID: "cycle-1", Trigger: "local", Op: "sync"}, lc)
	assert.Equal(t, LogContext{}, GetContext(context.Background()))
}

func TestNewLogger_ConsoleCarriesCycleFields(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(LoggerOptions{Console: &buf})
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	ctx := WithCycle(context.Background(), "cycle-7", "remote", "pull")
	logger.InfoContext(ctx, "Sync job completed")
	logger.Info("no context")
	logger.Debug("filtered out")

	out := buf.String()
	assert.Contains(t, out, "cycle_id=cycle-7")
	assert.Contains(t, out, "trigger=remote")
	assert.Contains(t, out, "no context")
	assert.NotContains(t, out, "filtered out")
}

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "ghsync.log")
	logger, closer, err := NewLogger(LoggerOptions{Console: &console, File: path, Level: slog.LevelDebug})
	require.NoError(t, err)

	logger.With("component", "batcher").Debug("Change recorded", "path", "/tmp/a.txt")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "Change recorded", rec["msg"])
	assert.Equal(t, "batcher", rec["component"])
	assert.Contains(t, console.String(), "Change recorded")
}
