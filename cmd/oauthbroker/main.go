package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/7HR4IZ3/ai-video-creator/internal/adapter/cache"
	oauthadapter "github.com/7HR4IZ3/ai-video-creator/internal/adapter/oauth"
	"github.com/7HR4IZ3/ai-video-creator/internal/config"
	httptransport "github.com/7HR4IZ3/ai-video-creator/internal/http"
	"github.com/7HR4IZ3/ai-video-creator/internal/http/handler"
	apimiddleware "github.com/7HR4IZ3/ai-video-creator/internal/middleware"
	"github.com/7HR4IZ3/ai-video-creator/internal/notify"
	"github.com/7HR4IZ3/ai-video-creator/internal/providers"
	"github.com/7HR4IZ3/ai-video-creator/internal/repository"
	"github.com/7HR4IZ3/ai-video-creator/internal/server"
	authservice "github.com/7HR4IZ3/ai-video-creator/internal/service/auth"
	"github.com/7HR4IZ3/ai-video-creator/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newTracer,
			newSnowflake,
			newRedisClient,
			newCredentialStore,
			newAttemptRecorder,
			providers.NewRegistry,
			newProviderClient,
			newSessionManager,
			newHub,
			newChannelHandler,
			newAuthHandler,
			newRateLimiter,
			httptransport.NewRouter,
			newHTTPServer,
		),
		fx.Invoke(startHTTPServer, startHeartbeat),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newTracer(provider *telemetry.Provider) trace.Tracer {
	return provider.Tracer()
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newCredentialStore(client redis.UniversalClient) repository.CredentialStore {
	return cacheadapter.NewRedisCredentialStore(client)
}

// newAttemptRecorder uses the Postgres ledger when DATABASE_URL is set.
func newAttemptRecorder(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.AttemptRecorder, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("attempt ledger disabled")
		return repository.NoopAttemptRecorder{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := repository.NewPostgresAttemptRepo(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return repo, nil
}

func newProviderClient(cfg config.Config) oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil, cfg.FacebookGraphURL)
}

func newSessionManager(
	registry *providers.Registry,
	store repository.CredentialStore,
	recorder repository.AttemptRecorder,
	providerClient oauthadapter.ProviderClient,
	tracer trace.Tracer,
	cfg config.Config,
	logger *zap.Logger,
) (authservice.SessionManager, error) {
	return authservice.NewSessionManager(registry, store, recorder, providerClient, tracer, cfg, logger)
}

func newHub(lc fx.Lifecycle, node *snowflake.Node, sessions authservice.SessionManager, logger *zap.Logger) (*notify.Hub, error) {
	hub, err := notify.NewHub(node, logger, notify.WithSessionResolver(sessions.PendingSession))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			return nil
		},
	})
	return hub, nil
}

func newChannelHandler(hub *notify.Hub) http.Handler {
	return hub.Handler()
}

func newAuthHandler(sessions authservice.SessionManager, hub *notify.Hub, registry *providers.Registry, logger *zap.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(sessions, hub, registry, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newHTTPServer(router *gin.Engine, cfg config.Config, logger *zap.Logger) *server.HTTPServer {
	return server.NewHTTPServer(router, cfg.Addr(), logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, logger *zap.Logger) {
	runInBackground(lc, func(ctx context.Context) {
		if err := srv.Run(ctx); err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	})
}

// startHeartbeat pings channel clients and sweeps abandoned sessions on the same tick.
func startHeartbeat(lc fx.Lifecycle, hub *notify.Hub, sessions authservice.SessionManager, cfg config.Config) {
	runInBackground(lc, func(ctx context.Context) {
		hub.Run(ctx, cfg.HeartbeatInterval, func(now time.Time) {
			sessions.SweepPendingSessions(ctx, now)
		})
	})
}

func runInBackground(lc fx.Lifecycle, run func(ctx context.Context)) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				defer close(done)
				run(runCtx)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
