package repositories

import (
	"context"
	"fmt"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for account persistence.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	GetByNumber(ctx context.Context, number string) (*models.Account, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Account, error)
	// AdjustBalance adds delta to the balance provided the account is not
	// blocked and the resulting balance stays >= minResult.
	AdjustBalance(ctx context.Context, id uint, delta, minResult decimal.Decimal) (*models.Account, error)
	UpdateStatus(ctx context.Context, id uint, status models.AccountStatus, reason string) (*models.Account, error)
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) GetByNumber(ctx context.Context, number string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("number = ?", number).First(&account).Error; err != nil {
		if isNotFound(err) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) ListByUser(ctx context.Context, userID uint) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("slot ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepository) AdjustBalance(ctx context.Context, id uint, delta, minResult decimal.Decimal) (*models.Account, error) {
	// The threshold is computed here rather than in SQL so both dialects
	// compare a column against a single bound numeric.
	threshold := minResult.Sub(delta)

	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND status <> ? AND balance >= ?", id, models.AccountStatusBlocked, threshold).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", res.Error)
	}

	account, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		if account.IsBlocked() {
			return nil, apperrors.ErrAccountBlocked
		}
		return nil, apperrors.Newf(apperrors.ErrInsufficientFunds,
			"insufficient funds: balance %s, required %s", account.Balance.StringFixed(2), threshold.StringFixed(2))
	}
	return account, nil
}

func (r *accountRepository) UpdateStatus(ctx context.Context, id uint, status models.AccountStatus, reason string) (*models.Account, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"status_reason": reason,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update account status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrAccountNotFound
	}
	return r.GetByID(ctx, id)
}
