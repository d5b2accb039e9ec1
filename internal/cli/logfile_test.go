package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorHealth_CLI_TeeLogFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var console bytes.Buffer
	base := slog.New(slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log, closeLog, err := teeLogFile(base, filepath.Join(dir, "logs"), "check.log")
	require.NoError(t, err)
	log.With("year", 2023).Info("source missing", "source", "bl_dl912")
	log.Debug("only on console")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(filepath.Join(dir, "logs", "check.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "source missing")
	assert.Contains(t, string(data), "year=2023")
	assert.NotContains(t, string(data), "only on console")

	assert.Contains(t, console.String(), "source missing")
	assert.Contains(t, console.String(), "only on console")
}
