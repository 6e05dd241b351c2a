package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8008", cfg.Server.Port)
	require.Equal(t, BackendSQLite, cfg.Store.Backend)
	require.Equal(t, 10, cfg.Login.MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.Login.RemoteWriteTimeout)
	require.Equal(t, 3*time.Second, cfg.Login.RemoteLoadTimeout)
	require.Equal(t, 50, cfg.Cache.MaxSize)
	require.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	require.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	require.InDelta(t, 0.8, cfg.Cache.HighWaterMark, 1e-9)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOGIN_MAX_ATTEMPTS", "3")
	t.Setenv("CACHE_MAX_SIZE", "2")
	t.Setenv("LOGIN_REMOTE_WRITE_TIMEOUT", "500ms")
	t.Setenv("STORE_BACKEND", "REDIS")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Login.MaxAttempts)
	require.Equal(t, 2, cfg.Cache.MaxSize)
	require.Equal(t, 500*time.Millisecond, cfg.Login.RemoteWriteTimeout)
	require.Equal(t, BackendRedis, cfg.Store.Backend)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LOGIN_MAX_ATTEMPTS", "-4")
	t.Setenv("CACHE_HIGH_WATER_MARK", "1.5")
	t.Setenv("STORE_BACKEND", "cassandra")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Login.MaxAttempts)
	require.InDelta(t, 0.8, cfg.Cache.HighWaterMark, 1e-9)
	require.Equal(t, BackendSQLite, cfg.Store.Backend)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("LOGIN_MAX_ATTEMPTS: 5\nCACHE_MAX_SIZE: 7\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CACHE_MAX_SIZE", "9")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Login.MaxAttempts)
	require.Equal(t, 9, cfg.Cache.MaxSize)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
}
