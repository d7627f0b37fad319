package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/stockledger/internal/adapter/http"
	"github.com/iho/stockledger/internal/adapter/http/handler"
	"github.com/iho/stockledger/internal/adapter/repository/docstore"
	redisRepo "github.com/iho/stockledger/internal/adapter/repository/redis"
	"github.com/iho/stockledger/internal/infrastructure/config"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/infrastructure/logger"
	"github.com/iho/stockledger/internal/infrastructure/metrics"
	"github.com/iho/stockledger/internal/infrastructure/postgres"
	"github.com/iho/stockledger/internal/infrastructure/redis"
	"github.com/iho/stockledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// app is the wired server and everything it has to release on exit.
type app struct {
	handler http.Handler
	pool    *docstore.AsyncPool
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the configured store and redis and builds the router.
// The async pool is returned unstarted.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{}

	client, err := openStore(ctx, cfg, log, a)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		cache       usecase.Cache
		idempotency usecase.IdempotencyStore
		pinger      handler.Pinger
	)
	if cfg.RedisEnabled {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		cache = redisRepo.NewCache(rdb, m)
		idempotency = redisRepo.NewIdempotencyStore(rdb, m)
		pinger = redis.NewPinger(rdb)
	} else {
		log.Warn().Msg("redis disabled: balance cache and idempotency keys are off")
	}

	policy := docstore.Policy{
		MaxAttempts:    cfg.StoreMaxAttempts,
		InitialBackoff: cfg.StoreInitialBackoff,
		Multiplier:     cfg.StoreBackoffMultiplier,
		MaxBackoff:     cfg.StoreMaxBackoff,
		CallTimeout:    cfg.StoreCallTimeout,
	}
	retrier := docstore.NewRetrier(policy, log, m)
	ids := docstore.NewULIDGenerator()
	a.pool = docstore.NewAsyncPool(cfg.WorkerCount, cfg.WorkerQueueSize, log, m)

	txManager := docstore.NewTxManager(client, policy, cfg.TxTimeout, log, m)
	entries := docstore.NewEntryRepository(client, retrier, ids)
	balances := docstore.NewBalanceRepository(client, retrier, ids)
	audits := docstore.NewAuditRepository(client, retrier, ids, a.pool)

	inventory := usecase.NewInventoryUseCase(txManager, entries, balances, audits, cache, ids, log, m)
	inventory.SetBalanceCacheTTL(cfg.BalanceCacheTTL)
	reconciliation := usecase.NewReconciliationUseCase(entries, balances)

	a.handler = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		EntryHandler:     handler.NewEntryHandler(inventory),
		SubjectHandler:   handler.NewSubjectHandler(inventory, reconciliation),
		ContainerHandler: handler.NewContainerHandler(inventory),
		HealthHandler:    handler.NewHealthHandler(docstore.NewHealthProbe(client), pinger),
		IdempotencyStore: idempotency,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		Logger:           log,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger, a *app) (documentdb.Client, error) {
	if cfg.DocstoreDriver == config.DriverMemory {
		log.Warn().Msg("using in-memory document store: data is lost on exit")
		return documentdb.NewMemory(), nil
	}

	if cfg.RunMigrations {
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
			return nil, err
		}
	}

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DatabaseMaxConns,
		MinConns:    cfg.DatabaseMinConns,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)
	log.Info().Msg("connected to postgres")

	return documentdb.NewPostgres(pool), nil
}

// run serves until ctx is cancelled, then shuts the server down and
// drains queued store writes.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	a, err := newApp(ctx, cfg, log, metrics.New())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.pool.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start async pool: %w", err)
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      a.handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("driver", cfg.DocstoreDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = a.pool.Stop(cfg.WorkerDrainTimeout)
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if err := a.pool.Stop(cfg.WorkerDrainTimeout); err != nil {
		log.Error().Err(err).Msg("async writes not drained")
	}
	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	log.Info().Msg("server stopped")
	return nil
}
