package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.True(t, cfg.Server.Development)
	require.Equal(t, "https://fusen.example.com", cfg.Server.CORSOrigin)
	require.Equal(t, 50, cfg.Server.RateLimit)
	require.Equal(t, 30*time.Second, cfg.Server.RateWindow)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Host)
	require.Equal(t, 5433, cfg.Database.Port)
	require.Equal(t, "fusen", cfg.Database.Name)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "fusen-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 12*time.Hour, cfg.Auth.JWT.TTL)

	require.Equal(t, 48*time.Hour, cfg.Invites.TTL)
	require.Equal(t, "https://fusen.example.com", cfg.Invites.LinkBase)
	require.Equal(t, 240*time.Hour, cfg.Invites.Retention)
	require.Equal(t, "@hourly", cfg.Invites.Schedule)

	require.False(t, cfg.Metrics.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("FUSEN_SERVER_PORT", "7777")
	t.Setenv("FUSEN_DATABASE_DRIVER", "mysql")
	t.Setenv("FUSEN_AUTH_JWT_SECRET", "env-secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7777, cfg.Server.Port)
	require.Equal(t, "mysql", cfg.Database.Driver)
	require.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/fusen.sqlite", cfg.Database.Path)
	require.Equal(t, 7*24*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, 24*time.Hour, cfg.Invites.TTL)
	require.Equal(t, "@daily", cfg.Invites.Schedule)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "/metrics", cfg.Metrics.Endpoint)
}
