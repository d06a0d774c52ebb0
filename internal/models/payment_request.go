package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// PaymentRequest is created by a developer and settled by a user. The
// claim token marks an in-flight completion.
type PaymentRequest struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	DeveloperID    uint            `gorm:"not null;index" json:"developer_id"`
	PayerUserID    *uint           `gorm:"index" json:"payer_user_id,omitempty"`
	PayerAccountID *uint           `json:"payer_account_id,omitempty"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency       string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Description    string          `json:"description"`
	Status         PaymentStatus   `gorm:"size:16;not null;default:'pending';index" json:"status"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	ReturnURL      string          `json:"return_url,omitempty"`
	WebhookURL     string          `json:"webhook_url,omitempty"`
	Metadata       JSON            `gorm:"type:jsonb" json:"metadata,omitempty"`
	TransactionID  *uint           `json:"transaction_id,omitempty"`
	Commission     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"commission"`
	NetAmount      decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"net_amount"`
	ClaimToken     *string         `gorm:"size:36" json:"-"`
	ClaimedAt      *time.Time      `json:"-"`
	ExpiresAt      time.Time       `gorm:"not null;index" json:"expires_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p *PaymentRequest) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}

// IsExpired reports whether the request can no longer be completed at now.
func (p *PaymentRequest) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
