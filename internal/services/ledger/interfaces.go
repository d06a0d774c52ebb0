package ledger

import (
	"context"

	"cardpay/internal/models"
)

// Service is the append-only transaction log.
type Service interface {
	// RecordPending appends a pending transaction. When the idempotency key
	// was used before it returns the existing transaction together with
	// ErrDuplicateRequest.
	RecordPending(ctx context.Context, entry Entry) (*models.Transaction, error)
	// Finalize moves a pending transaction to completed or failed exactly
	// once.
	Finalize(ctx context.Context, id uint, outcome Outcome) (*models.Transaction, error)
	// Settle completes a pending transaction and applies its balance legs
	// in one database transaction. Nothing is written when any leg is
	// refused or Within fails; a transaction that is already final is
	// returned with ErrAlreadyFinalized.
	Settle(ctx context.Context, id uint, st Settlement) (*models.Transaction, error)
	Get(ctx context.Context, id uint) (*models.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	ListForAccount(ctx context.Context, accountID uint, offset, limit int) ([]models.Transaction, int64, error)
}
