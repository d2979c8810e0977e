package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rebalance-service/rebalance_service/internal/api/routes"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/cache"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/config"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/database"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/di"
	"github.com/rebalance-service/rebalance_service/pkg/graceful"
	"github.com/rebalance-service/rebalance_service/pkg/logger"
	"github.com/rebalance-service/rebalance_service/pkg/metrics"
	"github.com/rebalance-service/rebalance_service/pkg/secrets"
	"github.com/rebalance-service/rebalance_service/pkg/tracing"
)

// @title Rebalance Service API
// @version 1.0
// @description SOL/USDC rebalancing signal intake, vaults and settings.
// @BasePath /api/v1

// @securityDefinitions.apikey WalletAddress
// @in header
// @name X-Wallet-Address

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)

	if err := resolveSecrets(context.Background(), cfg); err != nil {
		log.Fatal("Failed to resolve secrets", "provider", cfg.Secrets.Provider, "error", err)
	}

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Environment == "development",
	}
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracingConfig, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}

	container, err := di.NewContainer(cfg, db, redisClient, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	// Jobs left in flight by a previous process go back to their queues
	// before any worker starts taking new ones
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := container.RequeueOrphans(startupCtx); err != nil {
		log.Fatal("Failed to requeue orphaned jobs", "error", err)
	}
	cancelStartup()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	signalWorker := container.NewSignalWorker()
	signalWorker.Start(workerCtx)

	executionWorker := container.NewExecutionWorker()
	executionWorker.Start(workerCtx)

	reaper := container.NewPendingReaper()
	if cfg.Reaper.Enabled {
		if err := reaper.Start(); err != nil {
			log.Fatal("Failed to start pending reaper", "error", err)
		}
	}

	router := routes.SetupRoutes(container)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        otelhttp.NewHandler(router, "rebalance-service"),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		log.Info("Starting server",
			"addr", server.Addr,
			"environment", cfg.Environment,
			"workers", cfg.Workers.Count,
			"lock_backend", cfg.Locks.Backend,
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
				metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
				metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
			}
		}
	}()

	shutdown := graceful.NewShutdownManager(server, time.Duration(cfg.Workers.ShutdownDeadline)*time.Second, log)
	shutdown.Register("signal_worker", signalWorker)
	shutdown.Register("execution_worker", executionWorker)
	shutdown.Register("pending_reaper", reaper)
	shutdown.RegisterCloser("aggregator", func() error {
		container.Close()
		return nil
	})
	shutdown.RegisterCloser("redis", redisClient.Close)
	shutdown.RegisterCloser("database", db.Close)

	if err := shutdown.WaitForShutdown(); err != nil {
		log.Warn("Shutdown finished with errors", "error", err)
		return
	}
	log.Info("Server exited gracefully")
}

// resolveSecrets replaces connection strings with values held by the secrets
// provider. The env provider is already applied by config.Load.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	if cfg.Secrets.Provider != "aws" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	provider, err := secrets.NewAWSSecretsManagerProvider(ctx, cfg.Secrets.Region, cfg.Secrets.Prefix)
	if err != nil {
		return err
	}
	manager := secrets.NewManager(secrets.NewCachedProvider(provider, 5*time.Minute))

	if cfg.Database.URL, err = manager.Resolve(ctx, secrets.DatabaseURLKey, cfg.Database.URL); err != nil {
		return err
	}
	if cfg.Redis.URL, err = manager.Resolve(ctx, secrets.RedisURLKey, cfg.Redis.URL); err != nil {
		return err
	}
	return nil
}
