package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/social-connect/internal/adapter/cache"
	"github.com/smallbiznis/social-connect/internal/adapter/platform"
	"github.com/smallbiznis/social-connect/internal/bootstrap"
	"github.com/smallbiznis/social-connect/internal/config"
	httptransport "github.com/smallbiznis/social-connect/internal/http"
	"github.com/smallbiznis/social-connect/internal/http/handler"
	"github.com/smallbiznis/social-connect/internal/http/middleware"
	"github.com/smallbiznis/social-connect/internal/refresh"
	"github.com/smallbiznis/social-connect/internal/repository"
	"github.com/smallbiznis/social-connect/internal/server"
	"github.com/smallbiznis/social-connect/internal/service"
	"github.com/smallbiznis/social-connect/internal/telemetry"
	"github.com/smallbiznis/social-connect/internal/workspace"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newCredentialStore,
			newWorkspaceStore,
			newStateStore,
			newStrategyRegistry,
			newCoordinator,
			newCredentialService,
			newConnectService,
			newRateLimiter,
			workspace.NewResolver,
			handler.NewCredentialHandler,
			handler.NewHealthHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureWorkspace, startHTTPServer),
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

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
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

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
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

func newCredentialStore(pool *pgxpool.Pool) repository.CredentialStore {
	return repository.NewPostgresCredentialRepo(pool)
}

func newWorkspaceStore(pool *pgxpool.Pool) repository.WorkspaceStore {
	return repository.NewPostgresWorkspaceRepo(pool)
}

func newStateStore(client redis.UniversalClient) repository.AuthorizeStateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newStrategyRegistry(cfg config.Config) *platform.Registry {
	apps := platform.Apps{
		Twitter:  platform.App(cfg.TwitterApp),
		LinkedIn: platform.App(cfg.LinkedInApp),
		Meta:     platform.App(cfg.MetaApp),
		TikTok:   platform.App(cfg.TikTokApp),
		YouTube:  platform.App(cfg.YouTubeApp),
	}
	return platform.NewRegistry(apps, nil)
}

func newCoordinator(store repository.CredentialStore, registry *platform.Registry, cfg config.Config, logger *zap.Logger) *refresh.Coordinator {
	return refresh.NewCoordinator(store, registry, refresh.Config{
		SafetyMargin:   cfg.SafetyMargin,
		MaxAttempts:    cfg.RefreshMaxAttempts,
		BackoffBase:    cfg.RefreshBackoffBase,
		AttemptTimeout: cfg.RefreshAttemptTimeout,
	}, logger)
}

func newCredentialService(coordinator *refresh.Coordinator, store repository.CredentialStore, logger *zap.Logger) *service.CredentialService {
	return service.NewCredentialService(coordinator, store, logger)
}

func newConnectService(registry *platform.Registry, states repository.AuthorizeStateStore, store repository.CredentialStore, node *snowflake.Node, logger *zap.Logger) *service.ConnectService {
	return service.NewConnectService(registry, states, store, node, logger)
}

func newRateLimiter(cfg config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
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
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
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

func useTelemetry(*telemetry.Provider) {}
