package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/currency-converter/internal/api"
	"github.com/ayo6706/currency-converter/internal/api/handler"
	"github.com/ayo6706/currency-converter/internal/api/middleware"
	"github.com/ayo6706/currency-converter/internal/config"
	"github.com/ayo6706/currency-converter/internal/db"
	"github.com/ayo6706/currency-converter/internal/events"
	"github.com/ayo6706/currency-converter/internal/gateway"
	"github.com/ayo6706/currency-converter/internal/idempotency"
	"github.com/ayo6706/currency-converter/internal/ledger"
	"github.com/ayo6706/currency-converter/internal/models"
	"github.com/ayo6706/currency-converter/internal/observability"
	"github.com/ayo6706/currency-converter/internal/repository"
	"github.com/ayo6706/currency-converter/internal/service"
	"github.com/ayo6706/currency-converter/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the ledger, the HTTP server and the reconciliation worker,
// blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	auth, err := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.StorageBackend == config.StoragePostgres {
		pool, err = db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	kv := newKVStore(cfg, redisClient, pool)
	logger.Info("ledger storage selected", zap.String("backend", cfg.StorageBackend))

	store := ledger.NewStore(kv, logger)
	unsubscribe := store.Subscribe(recordBalances)
	defer unsubscribe()
	store.Initialize(ctx, cfg.LoadPersisted)

	publisher := newPublisher(cfg.AMQPURL, logger)
	if closer, ok := publisher.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	rates := gateway.NewMockRateProvider()
	rates.Latency = cfg.QuoteLatency

	policy := service.CommissionPolicy{
		FreeTransactions: cfg.FreeTransactions,
		Percent:          cfg.CommissionPercent,
	}
	audit := service.NewAuditService(logger)
	exchanges := service.NewExchangeService(store, policy, publisher, audit, logger)
	accounts := service.NewAccountService(store)
	quotes := service.NewQuoteService(rates)
	reconciliation := service.NewReconciliationService(store, kv)

	reconWorker := worker.NewReconciliationWorker(reconciliation, logger).
		WithInterval(cfg.ReconciliationInterval)
	stopWorker := reconWorker.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	// Typed nils would make the readiness probe call into a missing client.
	var dbPinger handler.Pinger
	if pool != nil {
		dbPinger = pool
	}
	var cache redis.Cmdable
	var idemStore *idempotency.Store
	if redisClient != nil {
		cache = redisClient
		idemStore = idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
	} else {
		logger.Warn("idempotency disabled: REDIS_URL not set")
	}

	router := api.NewRouter(cfg, logger, auth, dbPinger, cache, idemStore, accounts, exchanges, quotes, reconciliation)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping reconciliation worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	store.Persist(shutdownCtx)
	logger.Info("shutdown complete")
	return nil
}

// newKVStore picks the ledger's durable storage. Remote backends sit behind a
// circuit breaker so an outage degrades persistence instead of exchanges.
func newKVStore(cfg *config.Config, redisClient *redis.Client, pool *pgxpool.Pool) repository.KVStore {
	breaker := repository.BreakerConfig{
		ConsecutiveFailures: cfg.BreakerFailures,
		Timeout:             cfg.BreakerTimeout,
	}
	switch cfg.StorageBackend {
	case config.StorageRedis:
		return repository.NewBreakerKV("redis", repository.NewRedisKV(redisClient, "ledger"), breaker)
	case config.StoragePostgres:
		return repository.NewBreakerKV("postgres", repository.NewPostgresKV(pool), breaker)
	default:
		return repository.NewMemoryKV()
	}
}

func newPublisher(url string, logger *zap.Logger) events.Publisher {
	if url == "" {
		return events.NopPublisher{}
	}
	publisher, err := events.DialRabbit(url)
	if err != nil {
		logger.Warn("receipt publishing disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	logger.Info("publishing receipts to rabbitmq")
	return publisher
}

func recordBalances(snap models.Snapshot) {
	for _, acc := range snap.Accounts {
		observability.SetAccountBalance(acc.Currency.Code(), acc.Amount.InexactFloat64())
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
