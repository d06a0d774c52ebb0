package handlers

import (
	"cardpay/internal/services/exchange"
	"cardpay/internal/services/topup"
	"cardpay/internal/utils"
	"cardpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// TopUpHandler exposes top-ups, admin adjustments and the rate table.
type TopUpHandler struct {
	service topup.Service
	rates   *exchange.Table
}

func NewTopUpHandler(s topup.Service, rates *exchange.Table) *TopUpHandler {
	return &TopUpHandler{service: s, rates: rates}
}

type topUpRequest struct {
	AccountID      uint            `json:"account_id" validate:"required"`
	Channel        string          `json:"channel" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"max=500"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

// TopUp handles POST /api/topups.
func (h *TopUpHandler) TopUp(c *fiber.Ctx) error {
	var req topUpRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	return h.run(c, req)
}

type adjustmentRequest struct {
	AccountID      uint            `json:"account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"required,max=500"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

// Adjust handles POST /api/admin/adjustments.
func (h *TopUpHandler) Adjust(c *fiber.Ctx) error {
	var req adjustmentRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	return h.run(c, topUpRequest{
		AccountID:      req.AccountID,
		Channel:        string(exchange.ChannelAdmin),
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
}

func (h *TopUpHandler) run(c *fiber.Ctx, req topUpRequest) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	tx, err := h.service.TopUp(c.UserContext(), caller, topup.Request{
		AccountID:      req.AccountID,
		Channel:        req.Channel,
		ExternalAmount: req.Amount,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
		Description:    req.Description,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"transaction": tx})
}

// Rates handles GET /api/rates.
func (h *TopUpHandler) Rates(c *fiber.Ctx) error {
	return response.Success(c, fiber.Map{"rates": h.rates.Rates()})
}
