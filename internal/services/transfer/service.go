package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/metrics"
	"cardpay/internal/models"
	"cardpay/internal/services/ledger"
	"cardpay/internal/validation"

	"github.com/rs/zerolog"
)

type service struct {
	accounts AccountService
	ledger   ledger.Service
	notifier NotificationService
	config   Config
	log      zerolog.Logger
	metrics  metrics.Collector
}

// NewService creates a new transfer service instance.
func NewService(accounts AccountService, l ledger.Service, notifier NotificationService, config Config, log zerolog.Logger, m metrics.Collector) Service {
	if accounts == nil {
		panic("account service is required")
	}
	if l == nil {
		panic("ledger is required")
	}
	if config.IssuerPrefix == "" {
		config.IssuerPrefix = "400"
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}
	return &service{
		accounts: accounts,
		ledger:   l,
		notifier: notifier,
		config:   config,
		log:      log.With().Str("component", "transfer").Logger(),
		metrics:  m,
	}
}

// Transfer moves funds from one of the caller's cards to any other card.
// Every check runs before the ledger settles both legs in one database
// transaction; a refused credit leaves the source untouched and is reported
// as ErrCompensatedFailure.
func (s *service) Transfer(ctx context.Context, caller models.Caller, req Request) (*models.Transaction, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("transfer", time.Since(start))
	}()

	var key string
	if req.IdempotencyKey != "" {
		key = fmt.Sprintf("transfer:%d:%s", caller.UserID, req.IdempotencyKey)
		if existing, err := s.ledger.FindByIdempotencyKey(ctx, key); err == nil {
			return s.resume(ctx, existing)
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}

	src, dst, err := s.validate(ctx, caller, req)
	if err != nil {
		s.metrics.RecordError("transfer", string(apperrors.CodeOf(err)))
		return nil, err
	}

	tx, err := s.ledger.RecordPending(ctx, ledger.Entry{
		Type:                 models.TransactionTypeTransfer,
		SourceAccountID:      &src.ID,
		DestinationAccountID: &dst.ID,
		Amount:               req.Amount,
		Currency:             src.Currency,
		Description:          req.Description,
		Metadata: models.JSON{
			"from_number": src.Number,
			"to_number":   dst.Number,
		},
		IdempotencyKey: key,
	})
	if errors.Is(err, apperrors.ErrDuplicateRequest) {
		return s.resume(ctx, tx)
	}
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, tx)
}

// resume answers a repeated key: a pending transfer is settled now, a final
// one is replayed with its original result.
func (s *service) resume(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if tx.Status == models.TransactionStatusPending {
		return s.settle(ctx, tx)
	}
	if err := ledger.ReplayError(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *service) settle(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	log := s.log.With().Uint("transaction_id", tx.ID).Logger()

	done, err := s.ledger.Settle(ctx, tx.ID, ledger.Settlement{Legs: ledger.Postings(tx)})
	var legErr *ledger.LegError
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrAlreadyFinalized):
		return s.resume(ctx, done)
	case ledger.Definitive(err) && errors.As(err, &legErr) && legErr.Leg == 0:
		s.fail(ctx, tx.ID, ledger.FailedWith(legErr.Err), "debit failed: ")
		s.metrics.RecordError("transfer", string(apperrors.CodeOf(legErr.Err)))
		return nil, legErr.Err
	case ledger.Definitive(err) && errors.As(err, &legErr):
		compErr := apperrors.Wrap(apperrors.ErrCompensatedFailure, legErr.Err)
		out := ledger.FailedWith(compErr)
		out.Metadata = out.Metadata.With("compensated", true)
		s.fail(ctx, tx.ID, out, "credit failed: ")
		s.metrics.RecordOperationResult("transfer", "compensated")
		log.Warn().Err(legErr.Err).Msg("transfer credit refused, debit rolled back")
		return nil, compErr
	default:
		// nothing was written; the transfer stays pending for a retry
		s.metrics.RecordOperationResult("transfer", "compensated")
		log.Error().Err(err).Msg("transfer settlement failed")
		return nil, apperrors.Wrap(apperrors.ErrCompensatedFailure, err)
	}

	s.metrics.RecordOperationResult("transfer", "success")
	log.Info().Str("amount", done.Amount.StringFixed(2)).Msg("transfer completed")

	if s.notifier != nil {
		for _, userID := range s.participants(ctx, done) {
			_ = s.notifier.SendTransferNotification(ctx, userID, done)
		}
	}
	return done, nil
}

func (s *service) participants(ctx context.Context, tx *models.Transaction) []uint {
	var users []uint
	for _, field := range []string{"from_number", "to_number"} {
		number, ok := tx.Metadata[field].(string)
		if !ok {
			continue
		}
		if acc, err := s.accounts.GetByNumber(ctx, number); err == nil {
			users = append(users, acc.UserID)
		}
	}
	return users
}

// validate applies the checks in a fixed order so the first failing rule
// decides the error.
func (s *service) validate(ctx context.Context, caller models.Caller, req Request) (*models.Account, *models.Account, error) {
	if !req.Amount.IsPositive() {
		return nil, nil, apperrors.Newf(apperrors.ErrInvalidAmount, "amount must be greater than zero")
	}
	if !validation.HasLedgerScale(req.Amount) {
		return nil, nil, apperrors.Newf(apperrors.ErrInvalidAmount, "amount must have at most 2 decimal places")
	}

	if !validation.ValidCardNumber(req.ToCardNumber, s.config.IssuerPrefix) {
		return nil, nil, apperrors.ErrInvalidCardNumber
	}
	dst, err := s.accounts.GetByNumber(ctx, req.ToCardNumber)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Newf(apperrors.ErrAccountNotFound, "destination card not found")
		}
		return nil, nil, err
	}
	if dst.IsBlocked() {
		return nil, nil, apperrors.Newf(apperrors.ErrAccountBlocked, "destination card is blocked")
	}
	if dst.ID == req.FromAccountID {
		return nil, nil, apperrors.ErrSameAccount
	}

	src, err := s.accounts.GetAccount(ctx, caller, req.FromAccountID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Newf(apperrors.ErrAccountNotFound, "source account not found")
		}
		return nil, nil, err
	}
	if src.IsBlocked() {
		return nil, nil, apperrors.Newf(apperrors.ErrAccountBlocked, "source account is blocked")
	}
	if !src.IsActive() {
		return nil, nil, apperrors.ErrAccountInactive
	}
	if src.Balance.LessThan(req.Amount) {
		return nil, nil, apperrors.Newf(apperrors.ErrInsufficientFunds,
			"insufficient funds: balance %s, requested %s", src.Balance.StringFixed(2), req.Amount.StringFixed(2))
	}
	return src, dst, nil
}

func (s *service) fail(ctx context.Context, txID uint, out ledger.Outcome, prefix string) {
	out.Reason = prefix + out.Reason
	if _, err := s.ledger.Finalize(ctx, txID, out); err != nil {
		s.log.Error().Err(err).Uint("transaction_id", txID).Msg("failed to finalize failed transfer")
	}
}
