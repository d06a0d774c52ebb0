package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusPending AccountStatus = "pending"
	AccountStatusActive  AccountStatus = "active"
	AccountStatusBlocked AccountStatus = "blocked"
)

// Account is a user-held card. Balance only changes through the
// conditional update in the account repository.
type Account struct {
	ID           uint            `gorm:"primarykey" json:"id"`
	UserID       uint            `gorm:"not null;uniqueIndex:idx_accounts_user_slot,priority:1" json:"user_id"`
	Slot         int             `gorm:"not null;uniqueIndex:idx_accounts_user_slot,priority:2" json:"-"`
	Number       string          `gorm:"size:16;uniqueIndex;not null" json:"number"`
	HolderName   string          `gorm:"not null" json:"holder_name"`
	Balance      decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	Currency     string          `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Status       AccountStatus   `gorm:"size:16;not null;default:'active';index" json:"status"`
	StatusReason string          `json:"status_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

func (a *Account) IsBlocked() bool {
	return a.Status == AccountStatusBlocked
}
