package repositories

import (
	"context"
	"fmt"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"

	"gorm.io/gorm"
)

var ErrDeveloperNotFound = apperrors.New(apperrors.CodeNotFound, "developer account not found")

type DeveloperRepository interface {
	Create(ctx context.Context, dev *models.DeveloperAccount) error
	GetByID(ctx context.Context, id uint) (*models.DeveloperAccount, error)
	GetByUserID(ctx context.Context, userID uint) (*models.DeveloperAccount, error)
	GetByKeyPrefix(ctx context.Context, prefix string) (*models.DeveloperAccount, error)
	UpdateKeys(ctx context.Context, id uint, prefix, hash, secret string) error
	UpdateWebhookURL(ctx context.Context, id uint, url string) error
	SetActive(ctx context.Context, id uint, active bool) error
}

type developerRepository struct {
	db *gorm.DB
}

func NewDeveloperRepository(db *gorm.DB) DeveloperRepository {
	return &developerRepository{db: db}
}

func (r *developerRepository) Create(ctx context.Context, dev *models.DeveloperAccount) error {
	if err := r.db.WithContext(ctx).Create(dev).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create developer account: %w", err)
	}
	return nil
}

func (r *developerRepository) GetByID(ctx context.Context, id uint) (*models.DeveloperAccount, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *developerRepository) GetByUserID(ctx context.Context, userID uint) (*models.DeveloperAccount, error) {
	return r.first(ctx, "user_id = ?", userID)
}

func (r *developerRepository) GetByKeyPrefix(ctx context.Context, prefix string) (*models.DeveloperAccount, error) {
	return r.first(ctx, "api_key_prefix = ?", prefix)
}

func (r *developerRepository) first(ctx context.Context, query string, arg interface{}) (*models.DeveloperAccount, error) {
	var dev models.DeveloperAccount
	if err := r.db.WithContext(ctx).Where(query, arg).First(&dev).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrDeveloperNotFound
		}
		return nil, fmt.Errorf("failed to get developer account: %w", err)
	}
	return &dev, nil
}

func (r *developerRepository) UpdateKeys(ctx context.Context, id uint, prefix, hash, secret string) error {
	return r.update(ctx, id, map[string]interface{}{
		"api_key_prefix": prefix,
		"api_key_hash":   hash,
		"webhook_secret": secret,
	})
}

func (r *developerRepository) UpdateWebhookURL(ctx context.Context, id uint, url string) error {
	return r.update(ctx, id, map[string]interface{}{"webhook_url": url})
}

func (r *developerRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.update(ctx, id, map[string]interface{}{"is_active": active})
}

func (r *developerRepository) update(ctx context.Context, id uint, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.DeveloperAccount{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update developer account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDeveloperNotFound
	}
	return nil
}
