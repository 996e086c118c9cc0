package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/walletledger/internal/adapter/http"
	"github.com/iho/walletledger/internal/adapter/http/handler"
	"github.com/iho/walletledger/internal/adapter/http/middleware"
	"github.com/iho/walletledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/walletledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/walletledger/internal/adapter/repository/redis"
	"github.com/iho/walletledger/internal/infrastructure/auth"
	"github.com/iho/walletledger/internal/infrastructure/config"
	"github.com/iho/walletledger/internal/infrastructure/eventpublisher"
	"github.com/iho/walletledger/internal/infrastructure/logger"
	"github.com/iho/walletledger/internal/infrastructure/metrics"
	"github.com/iho/walletledger/internal/infrastructure/postgres"
	"github.com/iho/walletledger/internal/infrastructure/redis"
	"github.com/iho/walletledger/internal/usecase"
)

const (
	rateLimitCleanupInterval = time.Minute
	rateLimitMaxIdle         = 10 * time.Minute
	outboxRetention          = 7 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	application, err := build(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer application.Close()

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      application.Handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("port", cfg.HTTPPort).
			Str("storage", cfg.StorageDriver).
			Bool("auth", cfg.AuthEnabled).
			Msg("starting server")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if application.Publisher != nil {
		g.Go(func() error {
			return application.Publisher.Start(gctx)
		})
	}

	g.Go(func() error {
		application.RateLimiter.RunCleanup(gctx, rateLimitCleanupInterval, rateLimitMaxIdle)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// app is the wired service: an HTTP handler plus the background workers that
// run beside it.
type app struct {
	Handler     http.Handler
	Publisher   *eventpublisher.EventPublisher
	RateLimiter *middleware.RateLimiter

	closeOnce sync.Once
	closers   []func()
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
	})
}

// repositories groups one storage driver's implementations.
type repositories struct {
	tx        usecase.TransactionManager
	accounts  usecase.AccountRepository
	entries   usecase.EntryRepository
	transfers usecase.TransferRepository
	outbox    usecase.OutboxRepository
	ledger    usecase.LedgerRepository
}

// build wires storage, use cases and transport from cfg. Metrics register on reg.
func build(ctx context.Context, cfg *config.Config, log zerolog.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{}
	m := metrics.NewWithRegistry(reg)

	var (
		repos  repositories
		checks []handler.HealthCheck
	)

	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		store := memory.NewStore(cfg.LockTimeout)
		repos = repositories{
			tx:        memory.NewTxManager(store),
			accounts:  memory.NewAccountRepository(store),
			entries:   memory.NewEntryRepository(store),
			transfers: memory.NewTransferRepository(store),
			outbox:    memory.NewOutboxRepository(store),
			ledger:    memory.NewLedgerRepository(store),
		}
		log.Warn().Msg("using in-memory storage; data is lost on restart")

	default:
		if cfg.MigrateOnStart {
			if err := postgres.RunMigrations(cfg.DatabaseURL, log); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}

		connectCtx, cancel := context.WithTimeout(ctx, cfg.DatabaseTimeout)
		pool, err := postgres.NewPoolWithConfig(connectCtx, postgres.PoolConfig{
			DatabaseURL: cfg.DatabaseURL,
			MaxConns:    cfg.DatabaseMaxConns,
			MinConns:    cfg.DatabaseMinConns,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		log.Info().Msg("connected to postgres")

		repos = repositories{
			tx:        postgresRepo.NewTxManager(pool, cfg.LockTimeout),
			accounts:  postgresRepo.NewAccountRepository(pool),
			entries:   postgresRepo.NewEntryRepository(pool),
			transfers: postgresRepo.NewTransferRepository(pool),
			outbox:    postgresRepo.NewOutboxRepository(pool),
			ledger:    postgresRepo.NewLedgerRepository(pool),
		}
		checks = append(checks, handler.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	var redisClient *goredis.Client
	if cfg.RedisEnabled {
		client, err := redis.NewClient(ctx, cfg.RedisURL, cfg.RedisPoolSize)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		redisClient = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		log.Info().Msg("connected to redis")
	}

	if !cfg.OutboxEnabled {
		repos.outbox = postgresRepo.NewNullOutboxRepository()
	}

	idGen := postgresRepo.NewULIDGenerator()
	allocator := usecase.NewReferenceAllocator(idGen, repos.entries, m)
	opts := []usecase.Option{
		usecase.WithRetrier(postgresRepo.NewRetrier(cfg.RetryMaxAttempts, log)),
		usecase.WithTxTimeout(cfg.TxTimeout),
	}

	var (
		entryCache       usecase.Cache
		idempotencyStore usecase.IdempotencyStore
	)
	if redisClient != nil {
		entryCache = redisRepo.NewCache(redisClient)
		idempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
	}

	accountUC := usecase.NewAccountUseCase(repos.tx, repos.accounts, repos.outbox, idGen, m, opts...)
	balanceUC := usecase.NewBalanceUseCase(repos.tx, repos.accounts, repos.entries, repos.outbox, allocator, idGen, m, opts...)
	transferUC := usecase.NewTransferUseCase(repos.tx, repos.accounts, repos.transfers, repos.entries, repos.outbox, allocator, idGen, m, opts...)
	entryUC := usecase.NewEntryUseCase(repos.entries, repos.accounts, repos.transfers, entryCache, cfg.EntryCacheTTL)
	ledgerUC := usecase.NewLedgerUseCase(repos.ledger, m)
	reconciliationUC := usecase.NewReconciliationUseCase(repos.accounts, repos.entries, ledgerUC)

	a.RateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)

	a.Handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AccountHandler:   handler.NewAccountHandler(accountUC),
		BalanceHandler:   handler.NewBalanceHandler(balanceUC),
		TransferHandler:  handler.NewTransferHandler(transferUC),
		EntryHandler:     handler.NewEntryHandler(entryUC),
		LedgerHandler:    handler.NewLedgerHandler(ledgerUC, reconciliationUC),
		HealthHandler:    handler.NewHealthHandler(checks...),
		Auth:             newAuthMiddleware(cfg, m),
		IdempotencyStore: idempotencyStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      a.RateLimiter,
		Logger:           log,
	})

	if cfg.OutboxEnabled {
		var publisher eventpublisher.Publisher = eventpublisher.NewLogPublisher(log)
		if redisClient != nil {
			publisher = eventpublisher.NewRedisPublisher(redisClient, cfg.EventsChannel)
		}

		a.Publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: repos.outbox,
			Publisher:  publisher,
			Metrics:    m,
			Logger:     log,
			BatchSize:  cfg.OutboxBatchSize,
			Interval:   cfg.OutboxPollInterval,
			Retention:  outboxRetention,
		})
	}

	return a, nil
}

// newAuthMiddleware verifies bearer tokens when auth is enabled and otherwise
// trusts the X-Owner-ID header.
func newAuthMiddleware(cfg *config.Config, m *metrics.Metrics) *middleware.AuthMiddleware {
	if cfg.AuthEnabled {
		return middleware.NewAuthMiddleware(
			auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
			middleware.BearerToken,
			m,
		)
	}

	return middleware.NewAuthMiddleware(auth.HeaderResolver{}, middleware.OwnerIDHeader, m)
}
