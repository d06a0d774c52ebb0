package repositories

import (
	"context"
	"fmt"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"

	"gorm.io/gorm"
)

var ErrDeliveryNotFound = apperrors.New(apperrors.CodeNotFound, "webhook delivery not found")

// AttemptResult is written after every delivery attempt.
type AttemptResult struct {
	AttemptCount  int
	Status        models.DeliveryStatus
	StatusCode    int
	Error         string
	At            time.Time
	NextAttemptAt *time.Time
}

type WebhookRepository interface {
	Create(ctx context.Context, d *models.WebhookDelivery) error
	GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error)
	// ClaimDue leases up to limit queued deliveries whose next attempt is
	// due by pushing next_attempt_at to leaseUntil.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]models.WebhookDelivery, error)
	// Claim leases one delivery on the same terms as ClaimDue. It returns
	// false when the delivery is not queued, not yet due or already leased.
	Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error)
	RecordAttempt(ctx context.Context, id string, result AttemptResult) error
	ListByDeveloper(ctx context.Context, developerID uint, status string, offset, limit int) ([]models.WebhookDelivery, int64, error)
	// Requeue resets an exhausted delivery so it is attempted again at at.
	Requeue(ctx context.Context, id string, developerID uint, at time.Time) (bool, error)
}

type webhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) Create(ctx context.Context, d *models.WebhookDelivery) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}
	return nil
}

func (r *webhookRepository) GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to get webhook delivery: %w", err)
	}
	return &d, nil
}

func (r *webhookRepository) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]models.WebhookDelivery, error) {
	var due []models.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.DeliveryStatusQueued, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due webhook deliveries: %w", err)
	}

	claimed := make([]models.WebhookDelivery, 0, len(due))
	for _, d := range due {
		ok, err := r.Claim(ctx, d.ID, now, leaseUntil)
		if err != nil {
			return claimed, err
		}
		if ok {
			d.NextAttemptAt = &leaseUntil
			claimed = append(claimed, d)
		}
	}
	return claimed, nil
}

func (r *webhookRepository) Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ? AND status = ? AND next_attempt_at <= ?", id, models.DeliveryStatusQueued, now).
		Updates(map[string]interface{}{
			"next_attempt_at": leaseUntil,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim webhook delivery: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *webhookRepository) RecordAttempt(ctx context.Context, id string, result AttemptResult) error {
	updates := map[string]interface{}{
		"attempt_count":    result.AttemptCount,
		"status":           result.Status,
		"last_status_code": result.StatusCode,
		"last_error":       result.Error,
		"last_attempt_at":  result.At,
		"next_attempt_at":  result.NextAttemptAt,
		"updated_at":       result.At,
	}
	if result.Status == models.DeliveryStatusDelivered {
		updates["delivered_at"] = result.At
	}

	res := r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to record webhook attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (r *webhookRepository) ListByDeveloper(ctx context.Context, developerID uint, status string, offset, limit int) ([]models.WebhookDelivery, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).Where("developer_id = ?", developerID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook deliveries: %w", err)
	}

	var deliveries []models.WebhookDelivery
	if err := scope().Order("created_at DESC").Offset(offset).Limit(limit).Find(&deliveries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	return deliveries, total, nil
}

func (r *webhookRepository) Requeue(ctx context.Context, id string, developerID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WebhookDelivery{}).
		Where("id = ? AND developer_id = ? AND status = ?", id, developerID, models.DeliveryStatusExhausted).
		Updates(map[string]interface{}{
			"status":          models.DeliveryStatusQueued,
			"attempt_count":   0,
			"next_attempt_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to requeue webhook delivery: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
