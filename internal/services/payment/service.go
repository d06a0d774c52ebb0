package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/metrics"
	"cardpay/internal/models"
	"cardpay/internal/repositories"
	"cardpay/internal/services/ledger"
	"cardpay/internal/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)

	// errClaimLost means the completion lease was taken over or the request
	// left pending while this caller held it.
	errClaimLost = errors.New("payment request claim lost")
)

// systemCaller reads accounts that the acting user does not own, such as a
// developer's settlement account.
var systemCaller = models.Caller{Role: models.RoleAdmin}

type service struct {
	store    *repositories.Store
	accounts AccountService
	ledger   ledger.Service
	webhooks WebhookQueue
	notifier NotificationService
	config   Config
	log      zerolog.Logger
	metrics  metrics.Collector
	now      func() time.Time
}

func NewService(
	store *repositories.Store,
	accounts AccountService,
	l ledger.Service,
	webhooks WebhookQueue,
	notifier NotificationService,
	config Config,
	log zerolog.Logger,
	m metrics.Collector,
) Service {
	if store == nil || accounts == nil || l == nil || webhooks == nil {
		panic("store, accounts, ledger and webhooks are required")
	}
	if config.RequestTTL <= 0 {
		config.RequestTTL = defaultRequestTTL
	}
	if config.ClaimLease <= 0 {
		config.ClaimLease = defaultClaimLease
	}
	if config.Currency == "" {
		config.Currency = "USD"
	}
	config.PublicURL = strings.TrimRight(config.PublicURL, "/")
	if m == nil {
		m = metrics.NoopCollector{}
	}
	return &service{
		store:    store,
		accounts: accounts,
		ledger:   l,
		webhooks: webhooks,
		notifier: notifier,
		config:   config,
		log:      log.With().Str("component", "payment").Logger(),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) CreatePaymentRequest(ctx context.Context, dev *models.DeveloperAccount, input CreateInput) (*Created, error) {
	if !dev.IsActive {
		return nil, apperrors.Newf(apperrors.ErrForbidden, "developer account is deactivated")
	}

	v := validation.New()
	v.PositiveAmount("amount", input.Amount)
	v.MaxLength("description", input.Description, validation.MaxDescriptionLength)
	v.OptionalURL("return_url", input.ReturnURL)
	v.OptionalURL("webhook_url", input.WebhookURL)
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	req := &models.PaymentRequest{
		ID:          uuid.NewString(),
		DeveloperID: dev.ID,
		PayerUserID: input.PayerUserID,
		Amount:      input.Amount,
		Currency:    s.config.Currency,
		Description: input.Description,
		Status:      models.PaymentStatusPending,
		ReturnURL:   input.ReturnURL,
		WebhookURL:  input.WebhookURL,
		Metadata:    input.Metadata,
		ExpiresAt:   now.Add(s.config.RequestTTL),
	}
	if err := s.store.PaymentRequests().Create(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.RecordPaymentTransition(string(models.PaymentStatusPending))
	s.log.Info().
		Str("payment_id", req.ID).
		Uint("developer_id", dev.ID).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("payment request created")
	return &Created{Request: req, PaymentURL: s.paymentURL(req.ID)}, nil
}

func (s *service) paymentURL(id string) string {
	return fmt.Sprintf("%s/pay/%s", s.config.PublicURL, id)
}

func (s *service) GetPaymentRequest(ctx context.Context, caller models.Caller, id string) (*models.PaymentRequest, error) {
	req, err := s.store.PaymentRequests().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.mayPay(caller, req) {
		return nil, repositories.ErrPaymentRequestNotFound
	}
	return req, nil
}

func (s *service) GetForDeveloper(ctx context.Context, dev *models.DeveloperAccount, id string) (*models.PaymentRequest, error) {
	req, err := s.store.PaymentRequests().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.DeveloperID != dev.ID {
		return nil, repositories.ErrPaymentRequestNotFound
	}
	return req, nil
}

func (s *service) ListPayments(ctx context.Context, dev *models.DeveloperAccount, filter Filter) (*PaymentList, error) {
	switch models.PaymentStatus(filter.Status) {
	case "", models.PaymentStatusPending, models.PaymentStatusCompleted, models.PaymentStatusFailed, models.PaymentStatusExpired:
	default:
		return nil, apperrors.Newf(apperrors.ErrValidation, "unknown payment status %q", filter.Status)
	}

	repo := s.store.PaymentRequests()
	payments, total, err := repo.ListByDeveloper(ctx, dev.ID, filter.Status, filter.Offset, filter.Limit)
	if err != nil {
		return nil, err
	}
	raw, err := repo.Stats(ctx, dev.ID)
	if err != nil {
		return nil, err
	}

	stats := Stats{
		TotalPayments:     raw.TotalPayments,
		CompletedPayments: raw.CompletedPayments,
		TotalAmount:       raw.TotalAmount,
		SuccessRate:       decimal.Zero,
	}
	if raw.TotalPayments > 0 {
		stats.SuccessRate = decimal.NewFromInt(raw.CompletedPayments).
			Mul(hundred).
			Div(decimal.NewFromInt(raw.TotalPayments)).
			Round(2)
	}
	return &PaymentList{Payments: payments, Total: total, Stats: stats}, nil
}

// mayPay reports whether caller is allowed to see and settle req.
func (s *service) mayPay(caller models.Caller, req *models.PaymentRequest) bool {
	return req.PayerUserID == nil || caller.Owns(*req.PayerUserID)
}

// claim takes the completion lease on a pending request. A failed claim is
// explained from the request's current state.
func (s *service) claim(ctx context.Context, req *models.PaymentRequest) (string, error) {
	now := s.now()
	token := uuid.NewString()
	ok, err := s.store.PaymentRequests().Claim(ctx, req.ID, token, now, now.Add(-s.config.ClaimLease))
	if err != nil {
		return "", err
	}
	if ok {
		return token, nil
	}

	current, err := s.store.PaymentRequests().GetByID(ctx, req.ID)
	if err != nil {
		return "", err
	}
	return "", s.stateError(current, now)
}

func (s *service) stateError(req *models.PaymentRequest, now time.Time) error {
	switch {
	case req.Status == models.PaymentStatusExpired:
		return apperrors.Newf(apperrors.ErrExpired, "payment request has expired")
	case req.IsTerminal():
		return apperrors.Newf(apperrors.ErrInvalidState, "payment request is already %s", req.Status)
	case req.IsExpired(now):
		return apperrors.Newf(apperrors.ErrExpired, "payment request has expired")
	}
	return apperrors.Newf(apperrors.ErrRequestInProgress, "payment request is being processed")
}

func (s *service) release(ctx context.Context, id, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.PaymentRequests().ReleaseClaim(ctx, id, token); err != nil {
		s.log.Error().Err(err).Str("payment_id", id).Msg("failed to release payment claim")
	}
}

func (s *service) developer(ctx context.Context, repo repositories.DeveloperRepository, id uint) (*models.DeveloperAccount, error) {
	dev, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load developer %d: %w", id, err)
	}
	return dev, nil
}
