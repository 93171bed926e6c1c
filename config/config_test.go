package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	cfg := Default()
	path := writeTempConfig(t, `{"port":"/dev/ttyUSB0","baud":9600,"session_max":2}`)

	require.NoError(t, LoadJSON(&cfg, path))

	require.Equal(t, "/dev/ttyUSB0", cfg.Port)
	require.Equal(t, 9600, cfg.BaudRate)
	require.Equal(t, 2, cfg.SessionMax)
	// Fields absent from the file keep their defaults.
	require.Equal(t, 128, cfg.BufferSize)
}

func TestLoadJSONMissingFile(t *testing.T) {
	cfg := Default()
	missing := filepath.Join(t.TempDir(), "missing.json")
	require.Error(t, LoadJSON(&cfg, missing))
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	require.Equal(t, 500_000_000, int(cfg.TxTimeout()))
	require.Equal(t, int64(1_000_000_000), cfg.InspectPeriod().Nanoseconds())
}
