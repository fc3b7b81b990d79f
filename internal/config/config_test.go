package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, int64(45000), cfg.StartingBalanceCents)
	assert.Equal(t, 10*time.Second, cfg.DuplicatePostWindow)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "admin@campusquest.local", cfg.AdminEmail)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.AdminHandles)
	assert.Empty(t, cfg.TrustedProxies)
	assert.False(t, cfg.EnableNotifications)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("ADMIN_HANDLES", "dean, registrar")
	t.Setenv("ENABLE_NOTIFICATIONS", "true")
	t.Setenv("STARTING_BALANCE_CENTS", "1000")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval)
	assert.Equal(t, []string{"dean", "registrar"}, cfg.AdminHandles)
	assert.True(t, cfg.EnableNotifications)
	assert.Equal(t, int64(1000), cfg.StartingBalanceCents)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.TrustedProxies)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campusquest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
admin_email: disputes@uni.edu
allowed_origins:
  - https://quests.uni.edu
  - https://admin.uni.edu
rate_limit_rps: 5
`), 0o600))
	t.Setenv("PORT", "7100")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, "disputes@uni.edu", cfg.AdminEmail)
	assert.Equal(t, []string{"https://quests.uni.edu", "https://admin.uni.edu"}, cfg.AllowedOrigins)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
