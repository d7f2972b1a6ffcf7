package api

import (
	"net/http"

	"github.com/davidocha/coinvault/internal/api/handler"
	"github.com/davidocha/coinvault/internal/api/middleware"
	"github.com/davidocha/coinvault/internal/api/spec"
	"github.com/davidocha/coinvault/internal/config"
	"github.com/davidocha/coinvault/internal/domain"
	"github.com/davidocha/coinvault/internal/idempotency"
	"github.com/davidocha/coinvault/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the wired service layer handed to the router.
type Services struct {
	Wallets      *service.WalletService
	Processor    *service.TransactionProcessor
	Plans        *service.PlanService
	Cancellation *service.CancellationService
	Integrity    *service.IntegrityService
	Webhooks     *service.WebhookService
	Rates        service.RateSource
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	redis     redis.Cmdable
	idemStore *idempotency.Store
	services  Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redisClient redis.Cmdable, idemStore *idempotency.Store, services Services) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		idemStore: idemStore,
		services:  services,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	walletHandler := handler.NewWalletHandler(api.services.Wallets)
	txHandler := handler.NewTransactionHandler(api.services.Processor, api.services.Rates)
	planHandler := handler.NewPlanHandler(api.services.Plans)
	subHandler := handler.NewSubscriptionHandler(api.services.Plans, api.services.Cancellation)
	adminHandler := handler.NewAdminHandler(api.services.Processor, api.services.Plans, api.services.Integrity)
	webhookHandler := handler.NewWebhookHandler(api.services.Webhooks, api.cfg.WebhookSkipSignature)

	idem := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	// Unauthenticated surface
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Get("/healthz/live", healthHandler.Live)
		r.Get("/healthz/ready", healthHandler.Ready)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

		r.Post("/v1/webhooks/deposit", webhookHandler.HandleDepositWebhook)
	})

	// Authenticated surface
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/wallets", walletHandler.ListWallets)
		r.Get("/v1/wallets/{asset}", walletHandler.GetWallet)
		r.Post("/v1/wallets/{asset}", walletHandler.CreateWallet)

		r.Get("/v1/transactions", txHandler.ListTransactions)
		r.Get("/v1/transactions/{id}", txHandler.GetTransaction)
		r.With(idem).Post("/v1/transactions/withdraw", txHandler.Withdraw)
		r.With(idem).Post("/v1/transactions/exchange", txHandler.Exchange)
		r.With(idem).Post("/v1/transactions/invest", txHandler.Invest)

		r.Get("/v1/plans", planHandler.ListPlans)
		r.Get("/v1/plans/{id}", planHandler.GetPlan)

		r.Get("/v1/subscriptions", subHandler.ListSubscriptions)
		r.Get("/v1/subscriptions/{id}", subHandler.GetSubscription)
		r.With(idem).Post("/v1/subscriptions/{id}/cancel", subHandler.CancelSubscription)

		// Back office
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.With(idem).Post("/v1/admin/deposits", adminHandler.CreditDeposit)
			r.Get("/v1/admin/withdrawals", adminHandler.ListPendingWithdrawals)
			r.Post("/v1/admin/withdrawals/{id}/approve", adminHandler.ApproveWithdrawal)
			r.Post("/v1/admin/withdrawals/{id}/reject", adminHandler.RejectWithdrawal)
			r.Post("/v1/admin/plans", adminHandler.CreatePlan)
			r.Patch("/v1/admin/plans/{id}/active", adminHandler.SetPlanActive)
			r.Get("/v1/admin/integrity", adminHandler.RunIntegrityCheck)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		handler.RespondError(w, req, http.StatusNotFound, "request/unknown-route", "Route not found")
	})

	return r
}
