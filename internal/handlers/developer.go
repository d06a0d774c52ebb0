package handlers

import (
	"cardpay/internal/services/developer"
	"cardpay/internal/utils"
	"cardpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// DeveloperHandler manages the caller's developer account.
type DeveloperHandler struct {
	service developer.Service
}

func NewDeveloperHandler(s developer.Service) *DeveloperHandler {
	return &DeveloperHandler{service: s}
}

type registerDeveloperRequest struct {
	Name                string           `json:"name" validate:"required,max=100"`
	WebhookURL          string           `json:"webhook_url" validate:"omitempty,url"`
	CommissionRate      *decimal.Decimal `json:"commission_rate"`
	SettlementAccountID *uint            `json:"settlement_account_id"`
}

// Register handles POST /api/developer. The API key and webhook secret are
// only returned here and by RotateKeys.
func (h *DeveloperHandler) Register(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req registerDeveloperRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	reg, err := h.service.Register(c.UserContext(), caller, developer.Input{
		Name:                req.Name,
		WebhookURL:          req.WebhookURL,
		CommissionRate:      req.CommissionRate,
		SettlementAccountID: req.SettlementAccountID,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, reg)
}

// Get handles GET /api/developer.
func (h *DeveloperHandler) Get(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	dev, err := h.service.Get(c.UserContext(), caller)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"developer": dev})
}

// RotateKeys handles POST /api/developer/keys.
func (h *DeveloperHandler) RotateKeys(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	reg, err := h.service.RotateKeys(c.UserContext(), caller)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, reg)
}

type updateWebhookRequest struct {
	WebhookURL string `json:"webhook_url"`
}

// UpdateWebhook handles PUT /api/developer/webhook. An empty URL clears it.
func (h *DeveloperHandler) UpdateWebhook(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req updateWebhookRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	dev, err := h.service.UpdateWebhook(c.UserContext(), caller, req.WebhookURL)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"developer": dev})
}

// Deactivate handles POST /api/admin/developers/:id/deactivate.
func (h *DeveloperHandler) Deactivate(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	id, err := uintParam(c, "id")
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.service.Deactivate(c.UserContext(), caller, id); err != nil {
		return response.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
