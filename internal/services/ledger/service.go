package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/metrics"
	"cardpay/internal/models"
	"cardpay/internal/repositories"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	metadataIdempotencyKey = "idempotency_key"
	metadataErrorCode      = "error_code"
)

var errNotPending = errors.New("transaction is not pending")

type service struct {
	store   *repositories.Store
	repo    repositories.TransactionRepository
	log     zerolog.Logger
	metrics metrics.Collector
	now     func() time.Time
}

func NewService(store *repositories.Store, log zerolog.Logger, m metrics.Collector) Service {
	if store == nil {
		panic("store is required")
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}
	return &service{
		store:   store,
		repo:    store.Transactions(),
		log:     log.With().Str("component", "ledger").Logger(),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) RecordPending(ctx context.Context, entry Entry) (*models.Transaction, error) {
	if entry.Type == "" {
		return nil, apperrors.Newf(apperrors.ErrValidation, "transaction type is required")
	}
	if entry.Amount.IsZero() {
		return nil, apperrors.ErrInvalidAmount
	}
	if entry.SourceAccountID == nil && entry.DestinationAccountID == nil {
		return nil, apperrors.Newf(apperrors.ErrValidation, "transaction needs a source or destination account")
	}

	meta := entry.Metadata
	var key *string
	if entry.IdempotencyKey != "" {
		k := entry.IdempotencyKey
		key = &k
		meta = meta.With(metadataIdempotencyKey, k)
	}

	tx := &models.Transaction{
		Reference:            uuid.NewString(),
		Type:                 entry.Type,
		SourceAccountID:      entry.SourceAccountID,
		DestinationAccountID: entry.DestinationAccountID,
		PaymentRequestID:     entry.PaymentRequestID,
		Amount:               entry.Amount.Round(2),
		Currency:             entry.Currency,
		Status:               models.TransactionStatusPending,
		Description:          entry.Description,
		Metadata:             meta,
		IdempotencyKey:       key,
	}

	err := s.repo.Create(ctx, tx)
	if errors.Is(err, repositories.ErrDuplicate) && key != nil {
		existing, getErr := s.repo.GetByIdempotencyKey(ctx, *key)
		if getErr != nil {
			return nil, fmt.Errorf("duplicate idempotency key lookup: %w", getErr)
		}
		return existing, apperrors.ErrDuplicateRequest
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *service) Finalize(ctx context.Context, id uint, outcome Outcome) (*models.Transaction, error) {
	if outcome.Status != models.TransactionStatusCompleted && outcome.Status != models.TransactionStatusFailed {
		return nil, apperrors.Newf(apperrors.ErrInvalidState, "cannot finalize to %q", outcome.Status)
	}

	var meta models.JSON
	if len(outcome.Metadata) > 0 {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		meta = current.Metadata
		for k, v := range outcome.Metadata {
			meta = meta.With(k, v)
		}
	}

	ok, err := s.repo.Finalize(ctx, id, outcome.Status, outcome.Reason, meta, s.now())
	if err != nil {
		return nil, err
	}
	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return tx, apperrors.ErrAlreadyFinalized
	}

	if tx.Status == models.TransactionStatusCompleted {
		s.metrics.RecordTransaction(string(tx.Type), tx.Amount)
	}
	s.log.Debug().
		Uint("transaction_id", tx.ID).
		Str("type", string(tx.Type)).
		Str("status", string(tx.Status)).
		Str("reason", tx.FailureReason).
		Msg("transaction finalized")
	return tx, nil
}

func (s *service) Settle(ctx context.Context, id uint, st Settlement) (*models.Transaction, error) {
	err := s.store.ExecuteInTransaction(ctx, func(txs *repositories.Store) error {
		// The guarded update takes the row lock first, so a concurrent
		// Settle of the same transaction waits here and then sees it final.
		ok, err := txs.Transactions().Finalize(ctx, id, models.TransactionStatusCompleted, "", nil, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return errNotPending
		}
		for i, leg := range st.Legs {
			if _, err := txs.Accounts().AdjustBalance(ctx, leg.AccountID, leg.Delta, leg.MinResult); err != nil {
				return &LegError{Leg: i, AccountID: leg.AccountID, Err: err}
			}
		}
		if st.Within != nil {
			return st.Within(txs)
		}
		return nil
	})
	if errors.Is(err, errNotPending) {
		current, getErr := s.repo.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return current, apperrors.ErrAlreadyFinalized
	}
	if err != nil {
		s.log.Warn().Err(err).Uint("transaction_id", id).Msg("settlement rolled back")
		return nil, err
	}

	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTransaction(string(tx.Type), tx.Amount)
	s.log.Debug().
		Uint("transaction_id", tx.ID).
		Str("type", string(tx.Type)).
		Int("legs", len(st.Legs)).
		Msg("transaction settled")
	return tx, nil
}

func (s *service) Get(ctx context.Context, id uint) (*models.Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) FindByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	return s.repo.GetByIdempotencyKey(ctx, key)
}

func (s *service) ListForAccount(ctx context.Context, accountID uint, offset, limit int) ([]models.Transaction, int64, error) {
	return s.repo.ListByAccount(ctx, accountID, offset, limit)
}
