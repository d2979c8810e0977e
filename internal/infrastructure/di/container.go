package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rebalance-service/rebalance_service/internal/api/handlers"
	domainerrors "github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/internal/domain/repositories"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/eligibility"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/execution"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/route"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/settings"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/signal"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/strategy"
	"github.com/rebalance-service/rebalance_service/internal/domain/services/vault"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/adapters/jupiter"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/cache"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/config"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/database"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/events"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/locks"
	"github.com/rebalance-service/rebalance_service/internal/infrastructure/queue"
	infrarepos "github.com/rebalance-service/rebalance_service/internal/infrastructure/repositories"
	"github.com/rebalance-service/rebalance_service/internal/workers/execution_worker"
	"github.com/rebalance-service/rebalance_service/internal/workers/pending_reaper"
	"github.com/rebalance-service/rebalance_service/internal/workers/signal_worker"
	"github.com/rebalance-service/rebalance_service/pkg/idempotency"
	"github.com/rebalance-service/rebalance_service/pkg/logger"
	"github.com/rebalance-service/rebalance_service/pkg/ratelimit"
	"github.com/rebalance-service/rebalance_service/pkg/retry"
)

const (
	Version = "1.0.0"

	// SignalsPath is the signal ingress route
	SignalsPath = "/api/v1/signals"
)

// Stores groups the persistence ports the services depend on
type Stores struct {
	Profiles     repositories.ProfileRepository
	Vaults       repositories.VaultRepository
	Transactions repositories.TransactionRepository
	SignalLogs   repositories.SignalLogRepository
	Settlements  repositories.SettlementRepository
}

// Scheduler hands signal and execution jobs to the workers
type Scheduler interface {
	signal.SignalScheduler
	signal.ExecutionScheduler
}

// Dependencies are the infrastructure pieces a container is assembled from
type Dependencies struct {
	Stores       Stores
	Router       execution.Router
	Locker       execution.OwnerLocker
	Scheduler    Scheduler
	Idempotency  idempotency.Store
	HealthChecks map[string]handlers.HealthCheck
}

// Handlers holds the HTTP handlers mounted by the router
type Handlers struct {
	Health       *handlers.HealthHandler
	Signals      *handlers.SignalHandlers
	Vault        *handlers.VaultHandlers
	Settings     *handlers.SettingsHandlers
	Strategy     *handlers.StrategyHandlers
	Transactions *handlers.TransactionHandlers
}

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	DB        *sqlx.DB
	Redis     cache.RedisClient
	Logger    *logger.Logger
	ZapLogger *zap.Logger

	Stores      Stores
	Idempotency idempotency.Store
	// RateLimiter is nil when no shared store is available
	RateLimiter *ratelimit.Limiter

	Jupiter *jupiter.Client
	Route   *route.Service

	Receiver   *signal.Receiver
	Dispatcher *signal.Dispatcher
	Execution  *execution.Service
	Vault      *vault.Service
	Settings   *settings.Service

	SignalQueue    *queue.Queue
	ExecutionQueue *queue.Queue

	Handlers Handlers
}

// NewContainer wires the production graph: Postgres repositories, the Jupiter
// client, Redis queues and the configured owner lock backend.
func NewContainer(cfg *config.Config, db *sqlx.DB, redisClient cache.RedisClient, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()

	jupiterClient := jupiter.NewClient(jupiter.Config{
		BaseURL:   cfg.Aggregator.BaseURL,
		Timeout:   cfg.Aggregator.RequestTimeout(),
		RateLimit: cfg.Aggregator.RateLimit,
	}, zapLog)
	routeService := route.NewService(jupiterClient, zapLog)

	locker, err := newLocker(cfg, redisClient, zapLog)
	if err != nil {
		return nil, err
	}

	rdb := redisClient.Client()
	signalQueue := queue.NewQueue(rdb, cfg.Signals.SignalQueue, cfg.Workers.MaxAttempts, zapLog)
	executionQueue := queue.NewQueue(rdb, cfg.Signals.ExecutionQueue, cfg.Workers.MaxAttempts, zapLog)
	producer := queue.NewProducer(signalQueue, executionQueue,
		seconds(cfg.Workers.DispatchTimeout), seconds(cfg.Workers.JobTimeout))

	c := Build(cfg, Dependencies{
		Stores: Stores{
			Profiles:     infrarepos.NewProfileRepository(db, zapLog),
			Vaults:       infrarepos.NewVaultRepository(db, zapLog),
			Transactions: infrarepos.NewTransactionRepository(db, zapLog),
			SignalLogs:   infrarepos.NewSignalLogRepository(db, zapLog),
			Settlements:  infrarepos.NewSettlementRepository(db, zapLog),
		},
		Router:      routeService,
		Locker:      locker,
		Scheduler:   producer,
		Idempotency: idempotency.NewRedisStore(rdb),
		HealthChecks: map[string]handlers.HealthCheck{
			"database": func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
			"redis":    redisClient.Ping,
			"queues": func(ctx context.Context) error {
				// Depth also refreshes the queue depth gauge
				for _, q := range []*queue.Queue{signalQueue, executionQueue} {
					if _, err := q.Depth(ctx); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}, log)

	if cfg.Events.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		publisher, err := events.NewSNSPublisher(ctx, cfg.Events.Region, cfg.Events.TopicARN, zapLog.Named("events"))
		cancel()
		if err != nil {
			return nil, err
		}
		c.Execution.WithPublisher(publisher)
	}

	c.DB = db
	c.Redis = redisClient
	c.Jupiter = jupiterClient
	c.Route = routeService
	c.RateLimiter = ratelimit.NewLimiter(rdb, ratelimit.Config{
		Wallet: ratelimit.Limit{Limit: int64(cfg.Server.WalletLimitPerMin), Window: time.Minute},
		Endpoints: map[string]ratelimit.Limit{
			SignalsPath: {Limit: int64(cfg.Server.SignalLimitPerMin), Window: time.Minute},
		},
	}, zapLog)
	c.SignalQueue = signalQueue
	c.ExecutionQueue = executionQueue
	return c, nil
}

// Build assembles services and handlers on top of the given dependencies
func Build(cfg *config.Config, deps Dependencies, log *logger.Logger) *Container {
	zapLog := log.Zap()
	s := deps.Stores
	if deps.Idempotency == nil {
		deps.Idempotency = idempotency.NewMemoryStore()
	}

	retrier := retry.NewRetrier(retry.Policy{
		MaxRetries:    cfg.Aggregator.MaxRetries,
		BaseDelay:     time.Duration(cfg.Aggregator.RetryBaseDelay) * time.Millisecond,
		MaxDelay:      cfg.Aggregator.RequestTimeout(),
		RetryableFunc: domainerrors.ShouldRetry,
	}, zapLog)

	validator := eligibility.NewValidator(cfg.Signals.Cooldown(), zapLog)
	receiver := signal.NewReceiver(s.SignalLogs, deps.Scheduler, zapLog)
	dispatcher := signal.NewDispatcher(s.SignalLogs, s.Profiles, s.Transactions, validator, deps.Scheduler, zapLog)
	executionService := execution.NewService(s.Profiles, s.Vaults, s.Transactions, s.Settlements,
		deps.Router, retrier, deps.Locker,
		execution.Config{CallTimeout: cfg.Aggregator.RequestTimeout()}, zapLog)
	vaultService := vault.NewService(s.Profiles, s.Vaults, zapLog)
	settingsService := settings.NewService(s.Profiles, zapLog)
	strategyService := strategy.NewService(vaultService, s.Profiles, s.Transactions, validator, zapLog)

	return &Container{
		Config:      cfg,
		Logger:      log,
		ZapLogger:   zapLog,
		Stores:      s,
		Idempotency: deps.Idempotency,
		Receiver:    receiver,
		Dispatcher:  dispatcher,
		Execution:   executionService,
		Vault:       vaultService,
		Settings:    settingsService,
		Handlers: Handlers{
			Health:       handlers.NewHealthHandler(deps.HealthChecks, zapLog, Version),
			Signals:      handlers.NewSignalHandlers(receiver, s.SignalLogs, zapLog),
			Vault:        handlers.NewVaultHandlers(vaultService, zapLog),
			Settings:     handlers.NewSettingsHandlers(settingsService, zapLog),
			Strategy:     handlers.NewStrategyHandlers(strategyService, zapLog),
			Transactions: handlers.NewTransactionHandlers(s.Transactions, zapLog),
		},
	}
}

// NewSignalWorker creates the pool consuming the signal queue
func (c *Container) NewSignalWorker() *signal_worker.Worker {
	return signal_worker.NewWorker(signal_worker.Config{
		WorkerCount:     c.Config.Workers.SignalCount,
		DispatchTimeout: seconds(c.Config.Workers.DispatchTimeout),
		PollTimeout:     seconds(c.Config.Workers.PollTimeout),
	}, c.SignalQueue, c.Dispatcher, c.Logger.With("worker", "signal"))
}

// NewExecutionWorker creates the pool consuming the execution queue
func (c *Container) NewExecutionWorker() *execution_worker.Worker {
	return execution_worker.NewWorker(execution_worker.Config{
		WorkerCount: c.Config.Workers.Count,
		JobTimeout:  seconds(c.Config.Workers.JobTimeout),
		PollTimeout: seconds(c.Config.Workers.PollTimeout),
	}, c.ExecutionQueue, c.Execution, c.Logger.With("worker", "execution"))
}

// NewPendingReaper creates the stale pending transaction sweeper
func (c *Container) NewPendingReaper() *pending_reaper.Worker {
	return pending_reaper.NewWorker(c.Stores.Transactions, c.Config.Reaper.Schedule,
		seconds(c.Config.Reaper.StaleAfter), c.ZapLogger.Named("pending_reaper"))
}

// RequeueOrphans returns jobs left in the processing lists by a previous process
func (c *Container) RequeueOrphans(ctx context.Context) error {
	for _, q := range []*queue.Queue{c.SignalQueue, c.ExecutionQueue} {
		n, err := q.RequeueOrphans(ctx)
		if err != nil {
			return fmt.Errorf("requeue %s: %w", q.Name(), err)
		}
		if n > 0 {
			c.Logger.Warn("Requeued orphaned jobs", "queue", q.Name(), "count", n)
		}
	}
	return nil
}

// Close releases outbound clients
func (c *Container) Close() {
	if c.Jupiter != nil {
		c.Jupiter.Close()
	}
}

func newLocker(cfg *config.Config, redisClient cache.RedisClient, log *zap.Logger) (execution.OwnerLocker, error) {
	switch cfg.Locks.Backend {
	case "memory":
		log.Warn("Using in-process owner locks; run a single replica")
		return locks.NewMemoryLocker(seconds(cfg.Locks.WaitTimeout)), nil
	case "redis":
		return locks.NewRedisLocker(redisClient.Client(), seconds(cfg.Locks.TTL), seconds(cfg.Locks.WaitTimeout), log), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend %q", cfg.Locks.Backend)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
