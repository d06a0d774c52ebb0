// Package main starts the cardpay HTTP server together with the webhook
// dispatcher and the background scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardpay/internal/config"
	"cardpay/internal/handlers"
	"cardpay/internal/logger"
	"cardpay/internal/metrics"
	"cardpay/internal/middleware"
	"cardpay/internal/repositories"
	"cardpay/internal/repositories/cache"
	"cardpay/internal/routes"
	"cardpay/internal/services/account"
	"cardpay/internal/services/developer"
	"cardpay/internal/services/exchange"
	"cardpay/internal/services/ledger"
	"cardpay/internal/services/notification"
	"cardpay/internal/services/payment"
	"cardpay/internal/services/topup"
	"cardpay/internal/services/transfer"
	"cardpay/internal/services/webhook"
	"cardpay/internal/utils/response"
	"cardpay/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log := logger.New(cfg)

	db, err := repositories.Open(cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer func() {
		if err := repositories.Close(db); err != nil {
			log.Warn().Err(err).Msg("failed to close database connection")
		}
	}()
	if err := repositories.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("connected to database")

	// Redis is optional: idempotency falls back to the ledger key and the
	// scheduler runs without a lock.
	var (
		redisClient *cache.Client
		idempotency topup.IdempotencyStore
		locker      worker.Locker
		redisPinger handlers.Pinger
	)
	if cfg.Redis.Enabled {
		redisClient = cache.New(cache.NewRedisClient(cfg.Redis), "cardpay")
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis not reachable at startup, continuing")
		} else {
			log.Info().Msg("connected to redis")
		}
		cancel()
		defer redisClient.Close()
		idempotency, locker, redisPinger = redisClient, redisClient, redisClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheusCollector(registry)

	store := repositories.NewStore(db)
	notifier := notification.NewService(log)
	rates := exchange.NewTable(cfg.Rates)

	accountService := account.NewService(store.Accounts(), account.Config{
		IssuerPrefix:      cfg.Account.IssuerPrefix,
		MaxPerUser:        cfg.Account.MaxPerUser,
		Currency:          cfg.Account.Currency,
		RequireActivation: cfg.Account.RequireActivation,
	}, log, collector)
	ledgerService := ledger.NewService(store, log, collector)
	transferService := transfer.NewService(accountService, ledgerService, notifier, transfer.Config{
		IssuerPrefix: cfg.Account.IssuerPrefix,
	}, log, collector)
	topupService := topup.NewService(accountService, ledgerService, rates, idempotency,
		topup.NewStripeVerifier(cfg.StripeSecretKey),
		topup.Config{IdempotencyTTL: cfg.IdempotencyTTL, InFlightTTL: cfg.InFlightTTL}, log, collector)
	developerService := developer.NewService(store.Developers(), accountService, developer.Config{
		DefaultCommissionRate: cfg.Payment.DefaultCommissionRate,
	}, log)

	dispatcher := webhook.NewDispatcher(store.Webhooks(), webhook.Config{
		Timeout:     cfg.Webhook.Timeout,
		MaxAttempts: cfg.Webhook.MaxAttempts,
		Workers:     cfg.Webhook.Workers,
		BatchSize:   cfg.Webhook.BatchSize,
	}, log, collector)
	paymentService := payment.NewService(store, accountService, ledgerService, dispatcher, notifier, payment.Config{
		RequestTTL: cfg.Payment.RequestTTL,
		ClaimLease: cfg.Payment.ClaimLease,
		PublicURL:  cfg.PublicURL,
		Currency:   cfg.Account.Currency,
	}, log, collector)
	scheduler := worker.NewScheduler(paymentService, dispatcher, locker, worker.Config{
		ExpiryInterval:  cfg.Scheduler.ExpiryInterval,
		WebhookInterval: cfg.Scheduler.WebhookInterval,
		LockTTL:         cfg.Scheduler.LockTTL,
	}, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Accounts:   handlers.NewAccountHandler(accountService, ledgerService),
		Transfers:  handlers.NewTransferHandler(transferService),
		TopUps:     handlers.NewTopUpHandler(topupService, rates),
		Payments:   handlers.NewPaymentHandler(paymentService),
		Developers: handlers.NewDeveloperHandler(developerService),
		Webhooks:   handlers.NewWebhookHandler(dispatcher),
		Health:     handlers.NewHealthHandler(store, redisPinger),
	}, routes.Options{
		Auth:               middleware.NewAuthMiddleware(cfg.JWTSecret, log),
		APIKey:             developerService,
		Gatherer:           registry,
		DeveloperRateLimit: config.GetIntEnv("DEVELOPER_RATE_LIMIT", 120),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(ctx)
	scheduler.Start(ctx)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("cardpay listening")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	dispatcher.Wait()
	scheduler.Wait()
}
