package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: \"file::memory:\"\n  driver: sqlite\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Queue.AutoUpdateInterval)
	assert.Equal(t, time.Second, cfg.Queue.NotifyDelay)
	assert.Equal(t, 2*time.Second, cfg.Queue.SettleDelay)
	assert.Equal(t, 10, cfg.Refresh.CooldownSeconds)
	assert.Equal(t, 5, cfg.Refresh.MaxPerWindow)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, time.Minute, cfg.Reconcile.Interval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\nqueue:\n  auto_update_interval_seconds: 15\n")
	t.Setenv("QUEUED_SERVER_PORT", "9100")
	t.Setenv("QUEUED_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("QUEUED_QUEUE_NOTIFY_DELAY_MS", "250")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 15*time.Second, cfg.Queue.AutoUpdateInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.NotifyDelay)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
