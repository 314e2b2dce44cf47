package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, time.Second, cfg.Gateway.ListInterval)
		assert.Equal(t, 2*time.Second, cfg.Gateway.AutoRefreshDelay)
		assert.Equal(t, 5*time.Minute, cfg.Gateway.GrantTTL)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Format)
		assert.Equal(t, "connections.yaml", cfg.ConnectionsFile)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("STOWGATE_SERVER_PORT", "9090")
		t.Setenv("STOWGATE_LOGGING_LEVEL", "debug")
		t.Setenv("STOWGATE_GATEWAY_GRANT_TTL", "90s")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 90*time.Second, cfg.Gateway.GrantTTL)
	})

	t.Run("config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "gw.yaml")
		doc := `
server:
  host: 0.0.0.0
  port: 8443
gateway:
  list_interval: 500ms
  auto_refresh_delay: 3s
logging:
  format: json
connections_file: /etc/stowgate/connections.yaml
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
		t.Setenv("STOWGATE_CONFIG", path)

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8443, cfg.Server.Port)
		assert.Equal(t, 500*time.Millisecond, cfg.Gateway.ListInterval)
		assert.Equal(t, 3*time.Second, cfg.Gateway.AutoRefreshDelay)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "/etc/stowgate/connections.yaml", cfg.ConnectionsFile)
	})

	t.Run("env beats file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "gw.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8443\n"), 0o600))
		t.Setenv("STOWGATE_CONFIG", path)
		t.Setenv("STOWGATE_SERVER_PORT", "7070")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Setenv("STOWGATE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

		_, err := Load(ctx)
		assert.Error(t, err)
	})

	t.Run("port out of range", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("STOWGATE_SERVER_PORT", "70000")

		_, err := Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
	})

	t.Run("refresh delay below interval", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("STOWGATE_GATEWAY_LIST_INTERVAL", "5s")

		_, err := Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auto_refresh_delay")
	})
}

func TestServerConfigAddr(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 8443}
	assert.Equal(t, "0.0.0.0:8443", cfg.Addr())
}
