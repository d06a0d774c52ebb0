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

var ErrPaymentRequestNotFound = apperrors.New(apperrors.CodeNotFound, "payment request not found")

// Completion carries the values written when a claimed request completes.
type Completion struct {
	TransactionID  uint
	PayerUserID    uint
	PayerAccountID uint
	Commission     decimal.Decimal
	NetAmount      decimal.Decimal
	At             time.Time
}

type PaymentStats struct {
	TotalPayments     int64
	CompletedPayments int64
	TotalAmount       decimal.Decimal
}

// PaymentRequestRepository persists payment requests. Every status change
// is a compare-and-set on the pending status so concurrent writers cannot
// both win.
type PaymentRequestRepository interface {
	Create(ctx context.Context, req *models.PaymentRequest) error
	GetByID(ctx context.Context, id string) (*models.PaymentRequest, error)
	// Claim takes the completion lease on a pending, unexpired request. A
	// previous claim older than leaseCutoff is taken over.
	Claim(ctx context.Context, id, token string, now, leaseCutoff time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id, token string) error
	MarkCompleted(ctx context.Context, id, token string, c Completion) (bool, error)
	MarkFailed(ctx context.Context, id, token, reason string, at time.Time) (bool, error)
	// Expire marks a stale request expired unless a live claim holds it.
	Expire(ctx context.Context, id string, now, leaseCutoff time.Time) (bool, error)
	ListExpirable(ctx context.Context, now, leaseCutoff time.Time, limit int) ([]models.PaymentRequest, error)
	ListByDeveloper(ctx context.Context, developerID uint, status string, offset, limit int) ([]models.PaymentRequest, int64, error)
	Stats(ctx context.Context, developerID uint) (*PaymentStats, error)
}

type paymentRequestRepository struct {
	db *gorm.DB
}

func NewPaymentRequestRepository(db *gorm.DB) PaymentRequestRepository {
	return &paymentRequestRepository{db: db}
}

func (r *paymentRequestRepository) Create(ctx context.Context, req *models.PaymentRequest) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

func (r *paymentRequestRepository) GetByID(ctx context.Context, id string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return &req, nil
}

func (r *paymentRequestRepository) pending(ctx context.Context, id string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusPending)
}

func (r *paymentRequestRepository) Claim(ctx context.Context, id, token string, now, leaseCutoff time.Time) (bool, error) {
	res := r.pending(ctx, id).
		Where("expires_at > ?", now).
		Where("(claim_token IS NULL OR claimed_at < ?)", leaseCutoff).
		Updates(map[string]interface{}{
			"claim_token": token,
			"claimed_at":  now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim payment request: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRequestRepository) ReleaseClaim(ctx context.Context, id, token string) error {
	err := r.pending(ctx, id).
		Where("claim_token = ?", token).
		Updates(map[string]interface{}{
			"claim_token": nil,
			"claimed_at":  nil,
			"updated_at":  time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to release payment request claim: %w", err)
	}
	return nil
}

func (r *paymentRequestRepository) MarkCompleted(ctx context.Context, id, token string, c Completion) (bool, error) {
	res := r.pending(ctx, id).
		Where("claim_token = ?", token).
		Updates(map[string]interface{}{
			"status":           models.PaymentStatusCompleted,
			"transaction_id":   c.TransactionID,
			"payer_user_id":    c.PayerUserID,
			"payer_account_id": c.PayerAccountID,
			"commission":       c.Commission,
			"net_amount":       c.NetAmount,
			"completed_at":     c.At,
			"claim_token":      nil,
			"claimed_at":       nil,
			"updated_at":       c.At,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete payment request: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRequestRepository) MarkFailed(ctx context.Context, id, token, reason string, at time.Time) (bool, error) {
	res := r.pending(ctx, id).
		Where("claim_token = ?", token).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusFailed,
			"failure_reason": reason,
			"claim_token":    nil,
			"claimed_at":     nil,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to fail payment request: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRequestRepository) Expire(ctx context.Context, id string, now, leaseCutoff time.Time) (bool, error) {
	res := r.pending(ctx, id).
		Where("expires_at <= ?", now).
		Where("(claim_token IS NULL OR claimed_at < ?)", leaseCutoff).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusExpired,
			"failure_reason": "payment request expired",
			"claim_token":    nil,
			"claimed_at":     nil,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to expire payment request: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRequestRepository) ListExpirable(ctx context.Context, now, leaseCutoff time.Time, limit int) ([]models.PaymentRequest, error) {
	var reqs []models.PaymentRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.PaymentStatusPending, now).
		Where("(claim_token IS NULL OR claimed_at < ?)", leaseCutoff).
		Order("expires_at ASC").
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable payment requests: %w", err)
	}
	return reqs, nil
}

func (r *paymentRequestRepository) ListByDeveloper(ctx context.Context, developerID uint, status string, offset, limit int) ([]models.PaymentRequest, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.PaymentRequest{}).Where("developer_id = ?", developerID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payment requests: %w", err)
	}

	var reqs []models.PaymentRequest
	if err := scope().Order("created_at DESC").Offset(offset).Limit(limit).Find(&reqs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payment requests: %w", err)
	}
	return reqs, total, nil
}

func (r *paymentRequestRepository) Stats(ctx context.Context, developerID uint) (*PaymentStats, error) {
	var row struct {
		Total     int64
		Completed int64
		Amount    decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS amount",
			models.PaymentStatusCompleted, models.PaymentStatusCompleted).
		Where("developer_id = ?", developerID).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute payment stats: %w", err)
	}
	return &PaymentStats{
		TotalPayments:     row.Total,
		CompletedPayments: row.Completed,
		TotalAmount:       row.Amount,
	}, nil
}
