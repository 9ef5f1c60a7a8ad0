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

	cacheadapter "github.com/odilabs/odi-auth/internal/adapter/cache"
	"github.com/odilabs/odi-auth/internal/bootstrap"
	"github.com/odilabs/odi-auth/internal/config"
	httptransport "github.com/odilabs/odi-auth/internal/http"
	"github.com/odilabs/odi-auth/internal/http/handler"
	httpmiddleware "github.com/odilabs/odi-auth/internal/http/middleware"
	"github.com/odilabs/odi-auth/internal/kv"
	apimiddleware "github.com/odilabs/odi-auth/internal/middleware"
	"github.com/odilabs/odi-auth/internal/notifier"
	"github.com/odilabs/odi-auth/internal/ratelimit"
	"github.com/odilabs/odi-auth/internal/repository"
	"github.com/odilabs/odi-auth/internal/server"
	"github.com/odilabs/odi-auth/internal/service"
	"github.com/odilabs/odi-auth/internal/telemetry"
	"github.com/odilabs/odi-auth/internal/throttle"
	"github.com/odilabs/odi-auth/internal/token"
	"github.com/odilabs/odi-auth/internal/verification"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newRedisClient,
			newStore,
			newNotifier,
			newVerificationManager,
			newLoginThrottle,
			newIPLimiter,
			newRPMLimiter,
			newTokenIssuer,
			newTokenValidator,
			newAuthService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(bootstrap.EnsureAdmin, startHTTPServer),
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
	return snowflake.NewNode(1)
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

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
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

func newStore(client redis.UniversalClient, cfg config.Config) kv.Store {
	return cacheadapter.NewRedisStore(client, cfg.StoreTimeout)
}

func newNotifier(cfg config.Config, logger *zap.Logger) notifier.Notifier {
	return notifier.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom, logger)
}

func newVerificationManager(store kv.Store, sender notifier.Notifier, logger *zap.Logger) *verification.Manager {
	return verification.NewManager(store, sender, logger)
}

func newLoginThrottle(store kv.Store, cfg config.Config) *throttle.Login {
	return throttle.NewLogin(store, int64(cfg.LoginMaxAttempts), cfg.LoginAttemptWindow)
}

func newIPLimiter(store kv.Store) *ratelimit.Limiter {
	return ratelimit.NewLimiter(store)
}

func newRPMLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newTokenIssuer(cfg config.Config, store kv.Store) *token.Issuer {
	return token.NewIssuer([]byte(cfg.JWTSecret), []byte(cfg.JWTRefreshSecret), cfg.AccessTokenTTL, cfg.RefreshTokenTTL, store)
}

func newTokenValidator(cfg config.Config, store kv.Store) *token.Validator {
	return token.NewValidator([]byte(cfg.JWTSecret), store)
}

func newAuthService(users repository.UserRepository, codes *verification.Manager, attempts *throttle.Login, issuer *token.Issuer, validator *token.Validator, node *snowflake.Node, provider *telemetry.Provider, cfg config.Config, logger *zap.Logger) *service.AuthService {
	return service.NewAuthService(users, codes, attempts, issuer, validator, node, provider.Tracer(), cfg, logger)
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{AuthService: authService}
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

