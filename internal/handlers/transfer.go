package handlers

import (
	"cardpay/internal/services/transfer"
	"cardpay/internal/utils"
	"cardpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// TransferHandler exposes card-to-card transfers.
type TransferHandler struct {
	service transfer.Service
}

func NewTransferHandler(s transfer.Service) *TransferHandler { return &TransferHandler{service: s} }

type transferRequest struct {
	FromAccountID  uint            `json:"from_account_id" validate:"required"`
	ToCardNumber   string          `json:"to_card_number" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description" validate:"max=500"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=128"`
}

// Transfer handles POST /api/transfers.
func (h *TransferHandler) Transfer(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req transferRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}

	tx, err := h.service.Transfer(c.UserContext(), caller, transfer.Request{
		FromAccountID:  req.FromAccountID,
		ToCardNumber:   req.ToCardNumber,
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"transaction": tx})
}
