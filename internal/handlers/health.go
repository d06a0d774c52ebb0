package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the health check pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	redis Pinger
}

// NewHealthHandler creates the handler. redis may be nil when Redis is
// disabled.
func NewHealthHandler(db, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Check handles GET /health.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	services := fiber.Map{"database": "connected", "redis": "disabled"}

	if err := h.db.Ping(ctx); err != nil {
		status = fiber.StatusServiceUnavailable
		services["database"] = "unavailable"
	}
	if h.redis != nil {
		services["redis"] = "connected"
		if err := h.redis.Ping(ctx); err != nil {
			// Redis only backs fast paths, so its loss degrades but does not fail the check.
			services["redis"] = "unavailable"
		}
	}

	state := "ok"
	if status != fiber.StatusOK {
		state = "unavailable"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   state,
		"version":  "1.0.0",
		"services": services,
	})
}
