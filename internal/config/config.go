package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains runtime configuration for the OAuth broker server.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"oauth-broker"`
	Host        string `env:"OAUTH_SERVER_HOST" envDefault:"localhost"`
	Port        int    `env:"OAUTH_SERVER_PORT" envDefault:"8090"`
	BaseURL     string `env:"OAUTH_BASE_URL" envDefault:"http://localhost:8090"`

	// TikTok only accepts https redirects, so it usually points at a tunnel.
	TikTokRedirectBaseURL string `env:"TIKTOK_REDIRECT_BASE_URL"`

	YouTubeClientID      string `env:"YOUTUBE_CLIENT_ID"`
	YouTubeClientSecret  string `env:"YOUTUBE_CLIENT_SECRET"`
	FacebookAppID        string `env:"FACEBOOK_APP_ID"`
	FacebookAppSecret    string `env:"FACEBOOK_APP_SECRET"`
	FacebookPageID       string `env:"FACEBOOK_PAGE_ID"`
	FacebookGraphURL     string `env:"FACEBOOK_GRAPH_URL" envDefault:"https://graph.facebook.com/v18.0"`
	TikTokClientKey      string `env:"TIKTOK_CLIENT_KEY"`
	TikTokClientSecret   string `env:"TIKTOK_CLIENT_SECRET"`
	SnapchatClientID     string `env:"SNAPCHAT_CLIENT_ID"`
	SnapchatClientSecret string `env:"SNAPCHAT_CLIENT_SECRET"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisUsername string `env:"REDIS_USERNAME"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// DatabaseURL enables the Postgres attempt ledger when set.
	DatabaseURL string `env:"DATABASE_URL"`

	RateLimitRPM       int           `env:"RATE_LIMIT_RPM" envDefault:"120"`
	// Empty disables CORS headers.
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	PendingSessionTTL  time.Duration `env:"PENDING_SESSION_TTL" envDefault:"15m"`

	TelemetryEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TelemetryInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
}

// ClientConfig contains configuration for the CLI-side auth orchestrator.
type ClientConfig struct {
	ServerURL      string        `env:"OAUTH_SERVER_URL" envDefault:"http://localhost:8090"`
	ServerCommand  []string      `env:"OAUTH_SERVER_COMMAND" envSeparator:" " envDefault:"oauthbroker"`
	AuthTimeout    time.Duration `env:"OAUTH_AUTH_TIMEOUT" envDefault:"5m"`
	StartupTimeout time.Duration `env:"OAUTH_STARTUP_TIMEOUT" envDefault:"30s"`
	PollInterval   time.Duration `env:"OAUTH_POLL_INTERVAL" envDefault:"1s"`
	Environment    string        `env:"APP_ENV" envDefault:"development"`
}

// Load reads server configuration from the environment and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("OAUTH_BASE_URL is required")
	}
	cfg.TikTokRedirectBaseURL = strings.TrimRight(strings.TrimSpace(cfg.TikTokRedirectBaseURL), "/")
	if cfg.TikTokRedirectBaseURL == "" {
		cfg.TikTokRedirectBaseURL = cfg.BaseURL
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("OAUTH_SERVER_PORT must be between 1 and 65535")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}

	return cfg, nil
}

// LoadClient reads the CLI orchestrator configuration.
func LoadClient() (ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if cfg.ServerURL == "" {
		return ClientConfig{}, fmt.Errorf("OAUTH_SERVER_URL is required")
	}
	return cfg, nil
}

// Addr is the listen address of the HTTP front door.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RedisAddr is the host:port of the credential store.
func (c Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}
