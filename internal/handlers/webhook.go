package handlers

import (
	"cardpay/internal/services/webhook"
	"cardpay/internal/utils"
	"cardpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type WebhookHandler struct {
	dispatcher *webhook.Dispatcher
}

func NewWebhookHandler(d *webhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: d}
}

// List handles GET /v1/webhooks.
func (h *WebhookHandler) List(c *fiber.Ctx) error {
	dev, err := utils.GetDeveloper(c)
	if err != nil {
		return response.FromError(c, err)
	}
	page := utils.GetPagination(c, 1, 20)
	deliveries, total, err := h.dispatcher.ListDeliveries(c.UserContext(), dev, c.Query("status"), page.Offset, page.Limit)
	if err != nil {
		return response.FromError(c, err)
	}
	page.SetTotal(total)
	return response.Success(c, fiber.Map{"deliveries": deliveries, "pagination": page})
}

// Redeliver handles POST /v1/webhooks/:id/redeliver.
func (h *WebhookHandler) Redeliver(c *fiber.Ctx) error {
	dev, err := utils.GetDeveloper(c)
	if err != nil {
		return response.FromError(c, err)
	}
	delivery, err := h.dispatcher.Redeliver(c.UserContext(), dev, c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"delivery": delivery})
}

// Retry handles POST /api/admin/webhooks/retry. Due deliveries are sent by
// the worker pool; the request only wakes it.
func (h *WebhookHandler) Retry(c *fiber.Ctx) error {
	h.dispatcher.Nudge()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "scheduled"})
}
