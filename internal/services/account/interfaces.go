package account

import (
	"context"

	"cardpay/internal/models"

	"github.com/shopspring/decimal"
)

// Service manages cards and is the only path to balance changes.
type Service interface {
	CreateAccount(ctx context.Context, caller models.Caller, holderName string) (*models.Account, error)
	GetAccount(ctx context.Context, caller models.Caller, id uint) (*models.Account, error)
	GetByNumber(ctx context.Context, number string) (*models.Account, error)
	ListAccounts(ctx context.Context, caller models.Caller) ([]models.Account, error)

	AdjustBalance(ctx context.Context, id uint, delta, minResult decimal.Decimal) (*models.Account, error)

	BlockAccount(ctx context.Context, caller models.Caller, id uint, reason string) (*models.Account, error)
	ActivateAccount(ctx context.Context, caller models.Caller, id uint) (*models.Account, error)
}
