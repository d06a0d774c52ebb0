package topup

import (
	"context"
	"time"

	"cardpay/internal/models"
	"cardpay/internal/repositories/cache"

	"github.com/shopspring/decimal"
)

// AccountService defines the account operations used by top-ups.
type AccountService interface {
	GetAccount(ctx context.Context, caller models.Caller, id uint) (*models.Account, error)
}

// IdempotencyStore is the shared fast path for repeated keys. *cache.Client
// implements it.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key string, ttl time.Duration) (cache.Reservation, error)
	Complete(ctx context.Context, scope, key, result string, ttl time.Duration) error
	Release(ctx context.Context, scope, key string) error
}

// PurchaseVerifier confirms that an external card payment really happened.
type PurchaseVerifier interface {
	Verify(ctx context.Context, reference string, amount decimal.Decimal, currency string) error
}

// Service credits accounts from external channels.
type Service interface {
	TopUp(ctx context.Context, caller models.Caller, req Request) (*models.Transaction, error)
}
