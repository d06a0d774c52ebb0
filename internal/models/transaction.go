package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeTopup           TransactionType = "topup"
	TransactionTypeTransfer        TransactionType = "transfer"
	TransactionTypePayment         TransactionType = "payment"
	TransactionTypeWithdrawal      TransactionType = "withdrawal"
	TransactionTypeRefund          TransactionType = "refund"
	TransactionTypeAdminAdjustment TransactionType = "admin_adjustment"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only ledger record. Once it leaves pending
// it is never modified again.
type Transaction struct {
	ID                   uint              `gorm:"primarykey" json:"id"`
	Reference            string            `gorm:"size:36;uniqueIndex;not null" json:"reference"`
	Type                 TransactionType   `gorm:"size:32;not null;index" json:"type"`
	SourceAccountID      *uint             `gorm:"index" json:"source_account_id,omitempty"`
	DestinationAccountID *uint             `gorm:"index" json:"destination_account_id,omitempty"`
	PaymentRequestID     *string           `gorm:"size:36;index" json:"payment_request_id,omitempty"`
	Amount               decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency             string            `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Status               TransactionStatus `gorm:"size:16;not null;default:'pending';index" json:"status"`
	Description          string            `json:"description,omitempty"`
	FailureReason        string            `json:"failure_reason,omitempty"`
	Metadata             JSON              `gorm:"type:jsonb" json:"metadata,omitempty"`
	IdempotencyKey       *string           `gorm:"size:128;uniqueIndex" json:"-"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	FinalizedAt          *time.Time        `json:"finalized_at,omitempty"`
}

func (t *Transaction) IsFinal() bool {
	return t.Status != TransactionStatusPending
}
