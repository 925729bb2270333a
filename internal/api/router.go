package api

import (
	"github.com/ayo6706/currency-converter/internal/api/handler"
	"github.com/ayo6706/currency-converter/internal/api/middleware"
	"github.com/ayo6706/currency-converter/internal/api/spec"
	"github.com/ayo6706/currency-converter/internal/config"
	"github.com/ayo6706/currency-converter/internal/idempotency"
	"github.com/ayo6706/currency-converter/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	auth           *middleware.JWTAuth
	db             handler.Pinger
	redis          redis.Cmdable
	idemStore      *idempotency.Store
	accounts       *service.AccountService
	exchanges      *service.ExchangeService
	quotes         *service.QuoteService
	reconciliation *service.ReconciliationService
}

// NewRouter wires the HTTP surface. db, redis and idemStore may be nil when
// the process runs without them.
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	auth *middleware.JWTAuth,
	db handler.Pinger,
	redis redis.Cmdable,
	idemStore *idempotency.Store,
	accounts *service.AccountService,
	exchanges *service.ExchangeService,
	quotes *service.QuoteService,
	reconciliation *service.ReconciliationService,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		auth:           auth,
		db:             db,
		redis:          redis,
		idemStore:      idemStore,
		accounts:       accounts,
		exchanges:      exchanges,
		quotes:         quotes,
		reconciliation: reconciliation,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis, api.accounts)
	accountHandler := handler.NewAccountHandler(api.accounts)
	quoteHandler := handler.NewQuoteHandler(api.quotes)
	exchangeHandler := handler.NewExchangeHandler(api.exchanges, api.quotes, api.accounts)
	ledgerHandler := handler.NewLedgerHandler(api.reconciliation)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Get("/v1/accounts", accountHandler.ListAccounts)
		r.Get("/v1/accounts/{currency}", accountHandler.GetAccount)
		r.Get("/v1/quotes", quoteHandler.GetQuote)
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(api.auth.Middleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).Post("/v1/exchanges", exchangeHandler.CreateExchange)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleAdmin))

			r.Post("/v1/ledger/reset", accountHandler.ResetUserData)
			r.Post("/v1/ledger/reconcile", ledgerHandler.Reconcile)
		})
	})

	return r
}
