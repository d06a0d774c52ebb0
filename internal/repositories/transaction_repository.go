package repositories

import (
	"context"
	"fmt"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"

	"gorm.io/gorm"
)

var ErrTransactionNotFound = apperrors.New(apperrors.CodeNotFound, "transaction not found")

// TransactionRepository defines the interface for the append-only
// transaction log.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id uint) (*models.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	// Finalize moves a pending transaction to status. It returns false when
	// the transaction was no longer pending.
	Finalize(ctx context.Context, id uint, status models.TransactionStatus, reason string, metadata models.JSON, at time.Time) (bool, error)
	ListByAccount(ctx context.Context, accountID uint, offset, limit int) ([]models.Transaction, int64, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&tx).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) Finalize(ctx context.Context, id uint, status models.TransactionStatus, reason string, metadata models.JSON, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":         status,
		"failure_reason": reason,
		"finalized_at":   at,
		"updated_at":     at,
	}
	if metadata != nil {
		updates["metadata"] = metadata
	}

	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to finalize transaction: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uint, offset, limit int) ([]models.Transaction, int64, error) {
	scope := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.Transaction{}).
			Where("(source_account_id = ? OR destination_account_id = ?)", accountID, accountID)
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var txs []models.Transaction
	err := scope().Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&txs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, total, nil
}
