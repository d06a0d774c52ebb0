package payment

import (
	"time"

	"cardpay/internal/models"

	"github.com/shopspring/decimal"
)

type CreateInput struct {
	Amount      decimal.Decimal
	Description string
	ReturnURL   string
	WebhookURL  string
	Metadata    models.JSON
	// PayerUserID restricts who may settle the request.
	PayerUserID *uint
}

type Created struct {
	Request    *models.PaymentRequest
	PaymentURL string
}

type Filter struct {
	Status string
	Offset int
	Limit  int
}

type Stats struct {
	TotalPayments     int64           `json:"total_payments"`
	CompletedPayments int64           `json:"completed_payments"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	// SuccessRate is a percentage with two decimals.
	SuccessRate decimal.Decimal `json:"success_rate"`
}

type PaymentList struct {
	Payments []models.PaymentRequest
	Total    int64
	Stats    Stats
}

type Config struct {
	RequestTTL time.Duration
	ClaimLease time.Duration
	PublicURL  string
	Currency   string
}

const (
	defaultRequestTTL = 30 * time.Minute
	defaultClaimLease = 2 * time.Minute
	expireBatch       = 100

	reasonDeclined  = "declined by payer"
	reasonCancelled = "cancelled by developer"
	reasonExpired   = "payment request expired"
)
