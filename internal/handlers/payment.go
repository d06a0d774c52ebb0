package handlers

import (
	"time"

	"cardpay/internal/models"
	"cardpay/internal/services/payment"
	"cardpay/internal/utils"
	"cardpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// PaymentHandler serves payment requests to developers (API key) and to
// payers (JWT).
type PaymentHandler struct {
	service payment.Service
}

func NewPaymentHandler(s payment.Service) *PaymentHandler {
	return &PaymentHandler{service: s}
}

type createPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
	ReturnURL   string          `json:"return_url" validate:"omitempty,url"`
	WebhookURL  string          `json:"webhook_url" validate:"omitempty,url"`
	Metadata    models.JSON     `json:"metadata"`
	PayerUserID *uint           `json:"payer_user_id"`
}

type createdPayment struct {
	ID         string               `json:"id"`
	Status     models.PaymentStatus `json:"status"`
	Amount     decimal.Decimal      `json:"amount"`
	PaymentURL string               `json:"payment_url"`
	ExpiresAt  time.Time            `json:"expires_at"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Create handles POST /v1/payment.
func (h *PaymentHandler) Create(c *fiber.Ctx) error {
	dev, err := utils.GetDeveloper(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req createPaymentRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}

	created, err := h.service.CreatePaymentRequest(c.UserContext(), dev, payment.CreateInput{
		Amount:      req.Amount,
		Description: req.Description,
		ReturnURL:   req.ReturnURL,
		WebhookURL:  req.WebhookURL,
		Metadata:    req.Metadata,
		PayerUserID: req.PayerUserID,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, fiber.Map{"payment": createdPayment{
		ID:         created.Request.ID,
		Status:     created.Request.Status,
		Amount:     created.Request.Amount,
		PaymentURL: created.PaymentURL,
		ExpiresAt:  created.Request.ExpiresAt,
		CreatedAt:  created.Request.CreatedAt,
	}})
}

// List handles GET /v1/payments.
func (h *PaymentHandler) List(c *fiber.Ctx) error {
	dev, err := utils.GetDeveloper(c)
	if err != nil {
		return response.FromError(c, err)
	}
	page := utils.GetPagination(c, 1, 10)
	list, err := h.service.ListPayments(c.UserContext(), dev, payment.Filter{
		Status: c.Query("status"),
		Offset: page.Offset,
		Limit:  page.Limit,
	})
	if err != nil {
		return response.FromError(c, err)
	}
	page.SetTotal(list.Total)
	return response.Success(c, fiber.Map{
		"payments":   list.Payments,
		"stats":      list.Stats,
		"pagination": page,
	})
}

// Get handles GET /v1/payments/:id.
func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	dev, err := utils.GetDeveloper(c)
	if err != nil {
		return response.FromError(c, err)
	}
	req, err := h.service.GetForDeveloper(c.UserContext(), dev, c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"payment": req})
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Cancel handles POST /v1/payments/:id/cancel.
func (h *PaymentHandler) Cancel(c *fiber.Ctx) error {
	dev, err := utils.GetDeveloper(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req reasonRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return response.FromError(c, err)
		}
	}
	failed, err := h.service.FailPaymentRequest(c.UserContext(), dev, c.Params("id"), req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"payment": failed})
}

// View handles GET /api/payments/:id for the paying user.
func (h *PaymentHandler) View(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	req, err := h.service.GetPaymentRequest(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"payment": req})
}

type completePaymentRequest struct {
	SourceAccountID uint `json:"source_account_id" validate:"required"`
}

// Complete handles POST /api/payments/:id/complete.
func (h *PaymentHandler) Complete(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req completePaymentRequest
	if err := parseBody(c, &req); err != nil {
		return response.FromError(c, err)
	}
	done, err := h.service.CompletePaymentRequest(c.UserContext(), caller, c.Params("id"), req.SourceAccountID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"payment": done, "return_url": done.ReturnURL})
}

// Decline handles POST /api/payments/:id/decline.
func (h *PaymentHandler) Decline(c *fiber.Ctx) error {
	caller, err := utils.GetCaller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req reasonRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return response.FromError(c, err)
		}
	}
	failed, err := h.service.DeclinePaymentRequest(c.UserContext(), caller, c.Params("id"), req.Reason)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"payment": failed})
}

// Expire handles POST /api/admin/payments/expire.
func (h *PaymentHandler) Expire(c *fiber.Ctx) error {
	n, err := h.service.ExpireStalePaymentRequests(c.UserContext(), time.Now().UTC())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"expired": n})
}
