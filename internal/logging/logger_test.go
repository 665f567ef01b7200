package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"keyledger/internal/core"
	"keyledger/internal/logging"
)

var _ core.Logger = (*logging.Logger)(nil)

func decodeLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLoggerWritesKeyValues(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := logging.New().FromWriter(buf).WithLevel("debug").Make()
	require.NoError(t, err)

	log.Debug("operation committed", "op", "add_customer", "violations", 0)
	log.Error("snapshot write failed", "op", "add_customer", "error", errors.New("disk full"))
	log.Warn("odd", "dangling")

	entries := decodeLines(t, buf.String())
	require.Len(t, entries, 3)
	require.Equal(t, "debug", entries[0]["level"])
	require.Equal(t, "add_customer", entries[0]["op"])
	require.EqualValues(t, 0, entries[0]["violations"])
	require.Contains(t, entries[0], "time")
	require.Equal(t, "disk full", entries[1]["error"])
	require.Equal(t, "dangling", entries[2]["!BADKEY"])
}

func TestLoggerLevelFilters(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := logging.New().FromWriter(buf).WithLevel("WARN").Make()
	require.NoError(t, err)
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	entries := decodeLines(t, buf.String())
	require.Len(t, entries, 1)
	require.Equal(t, "shown", entries[0]["message"])

	_, err = logging.New().WithLevel("loud").Make()
	require.Error(t, err)
}

func TestLoggerFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyledger.log")
	t.Setenv("KEYLEDGER_LOG_LEVEL", "info")
	t.Setenv("KEYLEDGER_LOG_FILE", path)
	log, err := logging.FromEnv().Make()
	require.NoError(t, err)
	log.Info("installed demo seed", "driver", "sqlite")
	log.Zerolog().Info().Msg("native")
	require.NoError(t, log.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	entries := decodeLines(t, string(raw))
	require.Len(t, entries, 2)
	require.Equal(t, "sqlite", entries[0]["driver"])
}
