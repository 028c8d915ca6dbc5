package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.HTTPAddress)
	require.Equal(t, "file", cfg.Storage.Driver)
	require.Equal(t, "data/state.json", cfg.Storage.File.Path)
	require.Equal(t, 5*time.Second, cfg.Persistence.Timeout)
	require.Equal(t, 10*time.Second, cfg.Persistence.RetryInterval)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, 30*time.Second, cfg.Server.Heartbeat)
	require.Equal(t, 64, cfg.Server.WatchQueue)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
server:
  http_address: ":9090"
persistence:
  timeout: 2s
storage:
  driver: sqlite
  sqlite:
    path: /tmp/playground.db
`), 0644)
	require.NoError(t, err)

	t.Setenv("PLAYGROUND_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.HTTPAddress)
	require.Equal(t, 2*time.Second, cfg.Persistence.Timeout)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "/tmp/playground.db", cfg.Storage.SQLite.Path)
	require.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	require.Equal(t, ":8081", cfg.Server.RPCAddress)
}

func TestLoadConfig_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [\n"), 0644))

	_, err := LoadConfig(dir)
	require.Error(t, err)
}
