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

	"github.com/davidocha/coinvault/internal/api"
	"github.com/davidocha/coinvault/internal/api/middleware"
	"github.com/davidocha/coinvault/internal/config"
	"github.com/davidocha/coinvault/internal/db"
	"github.com/davidocha/coinvault/internal/gateway"
	"github.com/davidocha/coinvault/internal/idempotency"
	"github.com/davidocha/coinvault/internal/observability"
	"github.com/davidocha/coinvault/internal/repository"
	"github.com/davidocha/coinvault/internal/service"
	"github.com/davidocha/coinvault/internal/sweeplock"
	"github.com/davidocha/coinvault/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until
// shutdown.
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
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)
	addresses := gateway.NewMockAddressProvider()
	notifier := service.NewLogNotifier()

	walletSvc := service.NewWalletService(store, addresses)
	if err := walletSvc.EnsureMasterWallets(ctx); err != nil {
		return fmt.Errorf("ensure master wallets: %w", err)
	}

	processor := service.NewTransactionProcessor(store, addresses, notifier, service.ProcessorConfig{
		SettlementAsset:    cfg.SettlementAsset,
		ExchangeFeeRate:    cfg.ExchangeFeeRate,
		WithdrawalMinimums: service.DefaultProcessorConfig().WithdrawalMinimums,
	})
	planSvc := service.NewPlanService(store)
	cancelSvc := service.NewCancellationService(store, processor, notifier, service.CancellationConfig{
		PenaltyRate: cfg.PenaltyRate,
		GracePeriod: cfg.GracePeriod,
	})
	integritySvc := service.NewIntegrityService(store)
	webhookSvc := service.NewWebhookService(processor, cfg.WebhookHMACKey)

	sweepLock := sweeplock.NewRedisLock(redisClient, "coinvault:accrual-sweep", cfg.SweepLockTTL)
	accrualSvc := service.NewAccrualService(store, processor, notifier, sweepLock, service.AccrualConfig{
		Period:    cfg.AccrualPeriod,
		BatchSize: cfg.AccrualBatchSize,
	})

	accrualWorker := worker.NewAccrualWorker(accrualSvc).WithInterval(cfg.AccrualInterval)
	stopAccrual := accrualWorker.Run(ctx)
	logger.Info("accrual worker started", zap.Duration("interval", cfg.AccrualInterval), zap.Duration("period", cfg.AccrualPeriod))

	integrityWorker := worker.NewIntegrityWorker(integritySvc).WithInterval(cfg.IntegrityInterval)
	stopIntegrity := integrityWorker.Run(ctx)
	logger.Info("integrity worker started", zap.Duration("interval", cfg.IntegrityInterval))

	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, api.Services{
		Wallets:      walletSvc,
		Processor:    processor,
		Plans:        planSvc,
		Cancellation: cancelSvc,
		Integrity:    integritySvc,
		Webhooks:     webhookSvc,
		Rates:        service.NewStaticRateSource(),
	})

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

	logger.Info("stopping workers")
	stopAccrual()
	stopIntegrity()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
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
