package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DeveloperAccount struct {
	ID                  uint            `gorm:"primarykey" json:"id"`
	UserID              uint            `gorm:"uniqueIndex;not null" json:"user_id"`
	Name                string          `gorm:"not null" json:"name"`
	APIKeyPrefix        string          `gorm:"size:32;uniqueIndex;not null" json:"api_key_prefix"`
	APIKeyHash          string          `gorm:"not null" json:"-"`
	WebhookSecret       string          `gorm:"not null" json:"-"`
	CommissionRate      decimal.Decimal `gorm:"type:numeric(5,4);not null;default:0" json:"commission_rate"`
	WebhookURL          string          `json:"webhook_url,omitempty"`
	SettlementAccountID *uint           `json:"settlement_account_id,omitempty"`
	IsActive            bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}
