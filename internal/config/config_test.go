package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OAUTH_BASE_URL", "http://localhost:8090/")
	t.Setenv("TIKTOK_REDIRECT_BASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8090", cfg.BaseURL)
	require.Equal(t, cfg.BaseURL, cfg.TikTokRedirectBaseURL)
	require.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, "localhost:6379", cfg.RedisAddr())
	require.Equal(t, "localhost:8090", cfg.Addr())
	require.Empty(t, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OAUTH_BASE_URL", "https://broker.example.com")
	t.Setenv("TIKTOK_REDIRECT_BASE_URL", "https://tunnel.example.com/")
	t.Setenv("OAUTH_SERVER_PORT", "9000")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("HEARTBEAT_INTERVAL", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://tunnel.example.com", cfg.TikTokRedirectBaseURL)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "cache:6380", cfg.RedisAddr())
	require.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
}

func TestLoad_RejectsBadPort(t *testing.T) {
	t.Setenv("OAUTH_SERVER_PORT", "70000")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("OAUTH_SERVER_URL", "http://127.0.0.1:8090/")
	t.Setenv("OAUTH_SERVER_COMMAND", "go run ./cmd/oauthbroker")

	cfg, err := LoadClient()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8090", cfg.ServerURL)
	require.Equal(t, []string{"go", "run", "./cmd/oauthbroker"}, cfg.ServerCommand)
	require.Equal(t, 5*time.Minute, cfg.AuthTimeout)
	require.Equal(t, 30*time.Second, cfg.StartupTimeout)
}
