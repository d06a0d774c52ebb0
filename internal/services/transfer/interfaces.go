package transfer

import (
	"context"

	"cardpay/internal/models"
)

// AccountService defines the account operations used by the transfer service.
type AccountService interface {
	GetByNumber(ctx context.Context, number string) (*models.Account, error)
	GetAccount(ctx context.Context, caller models.Caller, id uint) (*models.Account, error)
}

// NotificationService is used to notify users about transfers.
type NotificationService interface {
	SendTransferNotification(ctx context.Context, userID uint, tx *models.Transaction) error
}

// Service handles card-to-card transfers.
type Service interface {
	Transfer(ctx context.Context, caller models.Caller, req Request) (*models.Transaction, error)
}
