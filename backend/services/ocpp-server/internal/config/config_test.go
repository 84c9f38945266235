package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	unsetEnv(t, "CONFIG_FILE", "OCPP_POSTGRES_DSN", "OCPP_STORAGE_DRIVER")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestLoadFromEnv(t *testing.T) {
	unsetEnv(t, "CONFIG_FILE")
	t.Setenv("OCPP_STORAGE_DRIVER", "Memory")
	t.Setenv("OCPP_HTTP_PORT", "9000")
	t.Setenv("OCPP_HEARTBEAT_INTERVAL", "60")
	unsetEnv(t, "OCPP_PING_INTERVAL", "OCPP_WS_PATH")
	t.Setenv("OCPP_CHARGERS_BASIC_AUTH", "CP1=$2a$10$abc,CP2=$2a$10$def")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, ":9000", cfg.HTTPAddress())
	assert.Equal(t, time.Minute, cfg.HeartbeatInterval())
	assert.Equal(t, 30*time.Second, cfg.PingInterval())
	assert.Equal(t, "/ocpp/", cfg.WebSocketPath())
	assert.Equal(t, map[string]string{"CP1": "$2a$10$abc", "CP2": "$2a$10$def"}, cfg.Chargers.BasicAuth)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  dsn: postgres://csms@localhost/csms
websocket:
  pingIntervalSeconds: 10
  path: charge
nats:
  url: nats://localhost:4222
`), 0o600))
	unsetEnv(t, "OCPP_STORAGE_DRIVER", "OCPP_POSTGRES_DSN", "OCPP_PING_INTERVAL", "OCPP_WS_PATH", "OCPP_NATS_URL")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://csms@localhost/csms", cfg.Database.DSN)
	assert.Equal(t, 10*time.Second, cfg.PingInterval())
	assert.Equal(t, "/charge/", cfg.WebSocketPath())
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Driver = DriverMemory
	cfg.OCPP.HeartbeatIntervalSeconds = -1
	assert.Error(t, cfg.Validate())
}
