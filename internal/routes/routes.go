// Package routes wires handlers and middleware onto the fiber app.
package routes

import (
	"time"

	"cardpay/internal/handlers"
	"cardpay/internal/middleware"
	"cardpay/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Accounts   *handlers.AccountHandler
	Transfers  *handlers.TransferHandler
	TopUps     *handlers.TopUpHandler
	Payments   *handlers.PaymentHandler
	Developers *handlers.DeveloperHandler
	Webhooks   *handlers.WebhookHandler
	Health     *handlers.HealthHandler
}

type Options struct {
	Auth   *middleware.AuthMiddleware
	APIKey middleware.APIKeyAuthenticator
	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// DeveloperRateLimit is requests per minute per API key. Zero disables it.
	DeveloperRateLimit int
}

func SetupRoutes(app *fiber.App, h Handlers, opts Options) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "cardpay API",
			"version": "1.0.0",
		})
	})
	app.Get("/health", h.Health.Check)
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	setupDeveloperAPI(app, h, opts)

	api := app.Group("/api", opts.Auth.Handler)
	setupUserRoutes(api, h)
	setupAdminRoutes(api.Group("/admin", middleware.RequireRole(models.RoleAdmin)), h)
}

func setupDeveloperAPI(app *fiber.App, h Handlers, opts Options) {
	v1 := app.Group("/v1")
	if opts.DeveloperRateLimit > 0 {
		v1.Use(limiter.New(limiter.Config{
			Max:        opts.DeveloperRateLimit,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.Get(fiber.HeaderAuthorization, c.IP())
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": fiber.Map{"code": "RATE_LIMITED", "message": "too many requests"},
				})
			},
		}))
	}
	v1.Use(middleware.APIKeyMiddleware(opts.APIKey))

	v1.Post("/payment", h.Payments.Create)
	v1.Get("/payments", h.Payments.List)
	v1.Get("/payments/:id", h.Payments.Get)
	v1.Post("/payments/:id/cancel", h.Payments.Cancel)

	v1.Get("/webhooks", h.Webhooks.List)
	v1.Post("/webhooks/:id/redeliver", h.Webhooks.Redeliver)
}

func setupUserRoutes(api fiber.Router, h Handlers) {
	accounts := api.Group("/accounts")
	accounts.Post("/", h.Accounts.Create)
	accounts.Get("/", h.Accounts.List)
	accounts.Get("/:id", h.Accounts.Get)
	accounts.Get("/:id/transactions", h.Accounts.Transactions)

	api.Post("/transfers", h.Transfers.Transfer)
	api.Post("/topups", h.TopUps.TopUp)
	api.Get("/rates", h.TopUps.Rates)

	payments := api.Group("/payments")
	payments.Get("/:id", h.Payments.View)
	payments.Post("/:id/complete", h.Payments.Complete)
	payments.Post("/:id/decline", h.Payments.Decline)

	dev := api.Group("/developer")
	dev.Post("/", h.Developers.Register)
	dev.Get("/", h.Developers.Get)
	dev.Post("/keys", h.Developers.RotateKeys)
	dev.Put("/webhook", h.Developers.UpdateWebhook)
}

func setupAdminRoutes(admin fiber.Router, h Handlers) {
	admin.Post("/adjustments", h.TopUps.Adjust)
	admin.Post("/accounts/:id/block", h.Accounts.Block)
	admin.Post("/accounts/:id/activate", h.Accounts.Activate)
	admin.Post("/payments/expire", h.Payments.Expire)
	admin.Post("/webhooks/retry", h.Webhooks.Retry)
	admin.Post("/developers/:id/deactivate", h.Developers.Deactivate)
}
