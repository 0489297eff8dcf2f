package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tiffany-su2004/smart-greenhouse/internal/config"
	"github.com/tiffany-su2004/smart-greenhouse/internal/credentials"
	"github.com/tiffany-su2004/smart-greenhouse/internal/dashboard"
	"github.com/tiffany-su2004/smart-greenhouse/internal/greenhouse"
	"github.com/tiffany-su2004/smart-greenhouse/internal/httpclient"
	"github.com/tiffany-su2004/smart-greenhouse/internal/jobs"
	"github.com/tiffany-su2004/smart-greenhouse/internal/rate"
	internalsecrets "github.com/tiffany-su2004/smart-greenhouse/internal/secrets"
	"github.com/tiffany-su2004/smart-greenhouse/internal/session"
	"github.com/tiffany-su2004/smart-greenhouse/pkg/logger"
	"github.com/tiffany-su2004/smart-greenhouse/pkg/secrets"
	"github.com/tiffany-su2004/smart-greenhouse/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infow("starting [greenhouse-console]...",
		"api", cfg.APIBaseURL,
		"credential_backend", cfg.CredentialBackend)

	// --- Credential store ---
	store, closeStore, err := openStore(ctx, cfg, logger.L())
	if err != nil {
		logg.Fatalw("failed to init credential store", "error", err)
	}

	// --- Greenhouse API client: refresh coordinator, dispatcher, facade ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	coordinator := session.NewCoordinator(logger.L(), store, httpClient, cfg.APIBaseURL, cfg.DeviceLabel)
	dispatcher := httpclient.NewDispatcher(logger.L(), httpClient, cfg.APIBaseURL, store, coordinator)
	client := greenhouse.NewClient(logger.L(), dispatcher, store, cfg.DeviceLabel)

	// --- Operator auto-login (secrets cached in-memory) ---
	stopCleaner := make(chan struct{})
	if cfg.AutoLoginEnabled() {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		operatorCache := secrets.NewCache[internalsecrets.OperatorCredentials](cfg.SecretsCacheTTL)
		go operatorCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

		resolver := internalsecrets.NewOperatorResolver(logger.L(), cfg.OperatorSecret, awsProvider, operatorCache)
		if err := autoLogin(ctx, store, resolver, client); err != nil {
			logg.Warnw("operator auto-login failed; use /api/v1/session/login", "error", err)
		}
	} else {
		logg.Info("OPERATOR_SECRET not configured; auto-login disabled")
	}

	// --- Dashboard snapshot poller ---
	snapshots := jobs.NewSnapshotStore()
	var poller *jobs.SnapshotPoller
	if cfg.SnapshotEnabled {
		poller = jobs.NewSnapshotPoller(logger.L(), client, snapshots, cfg.SnapshotInterval)
		go poller.Start(ctx)
	} else {
		logg.Info("SNAPSHOT_ENABLED=false; dashboard snapshot poller disabled")
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	toggleLimiter := rate.NewManager(rate.Config{Every: cfg.ControlEvery, Burst: cfg.ControlBurst})
	handler := dashboard.NewHandler(logger.L(), client, coordinator, snapshots, toggleLimiter)
	dashboard.RegisterRoutes(app, store, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[greenhouse-console] running",
		"env", cfg.Env,
		"session", coordinator.State(ctx).String(),
		"snapshot_interval", cfg.SnapshotInterval)

	<-ctx.Done()
	logg.Info("shutting down [greenhouse-console]...")

	close(stopCleaner)
	if poller != nil {
		poller.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	closeStore()
}

// openStore builds the credential store selected by CREDENTIAL_BACKEND.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (credentials.Store, func(), error) {
	switch cfg.CredentialBackend {
	case config.BackendMemory:
		return credentials.NewMemoryStore(), func() {}, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPass,
		})
		st := credentials.NewRedisStore(rdb, cfg.CredentialPrefix, log)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := st.HealthCheck(pingCtx); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		log.Info("credentials.redis_connected", zap.String("addr", cfg.RedisAddr))
		return st, func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis.close_failed", zap.Error(err))
			}
		}, nil

	case config.BackendPostgres:
		log.Info("credentials.postgres_connecting", zap.String("dsn", utils.MaskDSN(cfg.DatabaseURL)))
		st, err := credentials.NewPGStore(ctx, cfg.DatabaseURL, cfg.CredentialPrefix, credentials.PGPoolConfig{
			MaxConns:        int32(cfg.PGMaxConns),
			MinConns:        int32(cfg.PGMinConns),
			MaxConnLifetime: cfg.PGMaxConnLifetime,
			MaxConnIdleTime: cfg.PGMaxConnIdleTime,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown credential backend %q", cfg.CredentialBackend)
	}
}

// autoLogin logs in as the operator when the store holds no session.
func autoLogin(ctx context.Context, store credentials.Store, resolver *internalsecrets.OperatorResolver, client *greenhouse.Client) error {
	access, err := store.Access(ctx)
	if err != nil {
		return err
	}
	refresh, err := store.Refresh(ctx)
	if err != nil {
		return err
	}
	if access != "" || refresh != "" {
		logger.S().Info("stored session found; skipping operator auto-login")
		return nil
	}

	creds, err := resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Login(ctx, creds.Email, creds.Password); err != nil {
		var reqErr *greenhouse.RequestError
		if errors.As(err, &reqErr) && reqErr.Unauthorized() {
			resolver.Invalidate()
		}
		return err
	}
	return nil
}
