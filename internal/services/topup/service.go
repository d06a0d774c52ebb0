package topup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/metrics"
	"cardpay/internal/models"
	"cardpay/internal/services/exchange"
	"cardpay/internal/services/ledger"
	"cardpay/internal/validation"

	"github.com/rs/zerolog"
)

type service struct {
	accounts AccountService
	ledger   ledger.Service
	rates    *exchange.Table
	cache    IdempotencyStore
	verifier PurchaseVerifier
	config   Config
	log      zerolog.Logger
	metrics  metrics.Collector
}

// NewService creates a top-up service. cache and verifier may be nil: the
// ledger's unique key remains the idempotency anchor and purchases are not
// verified.
func NewService(
	accounts AccountService,
	l ledger.Service,
	rates *exchange.Table,
	cache IdempotencyStore,
	verifier PurchaseVerifier,
	config Config,
	log zerolog.Logger,
	m metrics.Collector,
) Service {
	if accounts == nil || l == nil || rates == nil {
		panic("accounts, ledger and rates are required")
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = defaultTTL
	}
	if config.InFlightTTL <= 0 {
		config.InFlightTTL = defaultInFlightTTL
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}
	return &service{
		accounts: accounts,
		ledger:   l,
		rates:    rates,
		cache:    cache,
		verifier: verifier,
		config:   config,
		log:      log.With().Str("component", "topup").Logger(),
		metrics:  m,
	}
}

func (s *service) TopUp(ctx context.Context, caller models.Caller, req Request) (tx *models.Transaction, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("topup", time.Since(start))
		if err != nil {
			s.metrics.RecordError("topup", string(apperrors.CodeOf(err)))
		}
	}()

	ch, err := s.checkRequest(caller, req)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s:%s:%s", idempotencyScope, ch, req.IdempotencyKey)

	reserved := false
	if s.cache != nil {
		res, rerr := s.cache.Reserve(ctx, idempotencyScope, key, s.config.InFlightTTL)
		switch {
		case rerr != nil:
			s.log.Warn().Err(rerr).Msg("idempotency cache unavailable, using ledger only")
		case res.InFlight:
			return nil, apperrors.ErrRequestInProgress
		case res.Result != "":
			if prior, perr := s.fromCache(ctx, res.Result); perr == nil {
				return s.resume(ctx, prior)
			}
		default:
			reserved = true
		}
	}
	defer func() {
		if !reserved {
			return
		}
		if err != nil {
			if rerr := s.cache.Release(ctx, idempotencyScope, key); rerr != nil {
				s.log.Warn().Err(rerr).Str("key", key).Msg("failed to release idempotency key")
			}
			return
		}
		if cerr := s.cache.Complete(ctx, idempotencyScope, key, strconv.FormatUint(uint64(tx.ID), 10), s.config.IdempotencyTTL); cerr != nil {
			s.log.Warn().Err(cerr).Str("key", key).Msg("failed to store idempotency result")
		}
	}()

	if existing, ferr := s.ledger.FindByIdempotencyKey(ctx, key); ferr == nil {
		return s.resume(ctx, existing)
	} else if !errors.Is(ferr, apperrors.ErrNotFound) {
		return nil, ferr
	}

	acc, err := s.accounts.GetAccount(ctx, caller, req.AccountID)
	if err != nil {
		return nil, err
	}
	if acc.IsBlocked() {
		return nil, apperrors.ErrAccountBlocked
	}
	if ch != exchange.ChannelAdmin && !acc.IsActive() {
		return nil, apperrors.ErrAccountInactive
	}

	credit, err := s.rates.Convert(ch, req.ExternalAmount)
	if err != nil {
		return nil, err
	}
	if credit.IsZero() {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount, "amount %s is worth less than 0.01 %s", req.ExternalAmount, acc.Currency)
	}

	if ch == exchange.ChannelPurchased && s.verifier != nil {
		if err := s.verifier.Verify(ctx, req.IdempotencyKey, req.ExternalAmount, acc.Currency); err != nil {
			return nil, err
		}
	}

	txType := models.TransactionTypeTopup
	if ch == exchange.ChannelAdmin {
		txType = models.TransactionTypeAdminAdjustment
	}
	rate, _ := s.rates.Rate(ch)

	tx, err = s.ledger.RecordPending(ctx, ledger.Entry{
		Type:                 txType,
		DestinationAccountID: &acc.ID,
		Amount:               credit,
		Currency:             acc.Currency,
		Description:          req.Description,
		Metadata: models.JSON{
			"channel":         string(ch),
			"external_amount": req.ExternalAmount.String(),
			"rate":            rate.String(),
			"initiated_by":    caller.UserID,
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

// resume answers a repeated key: a pending transaction is settled now, a
// final one is replayed with its original result.
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
	case ledger.Definitive(err) && errors.As(err, &legErr):
		if _, ferr := s.ledger.Finalize(ctx, tx.ID, ledger.FailedWith(legErr.Err)); ferr != nil {
			log.Error().Err(ferr).Msg("failed to finalize failed top-up")
		}
		return nil, legErr.Err
	default:
		// nothing was written; the transaction stays pending for a retry
		log.Error().Err(err).Msg("top-up settlement failed")
		return nil, apperrors.Wrap(apperrors.ErrCompensatedFailure, err)
	}

	s.metrics.RecordOperationResult("topup", "success")
	log.Info().
		Uint("account_id", *done.DestinationAccountID).
		Str("channel", fmt.Sprint(done.Metadata["channel"])).
		Str("amount", done.Amount.StringFixed(2)).
		Msg("top-up completed")
	return done, nil
}

func (s *service) checkRequest(caller models.Caller, req Request) (exchange.Channel, error) {
	ch, err := exchange.ParseChannel(req.Channel)
	if err != nil {
		return "", err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" || len(key) > maxIdempotencyKey || key != req.IdempotencyKey {
		return "", apperrors.Newf(apperrors.ErrValidation, "idempotency key is required")
	}

	if ch == exchange.ChannelAdmin {
		if err := caller.Require(models.RoleAdmin); err != nil {
			return "", err
		}
		if strings.TrimSpace(req.Description) == "" {
			return "", apperrors.Newf(apperrors.ErrValidation, "admin adjustments need a description")
		}
		if req.ExternalAmount.IsZero() {
			return "", apperrors.Newf(apperrors.ErrInvalidAmount, "adjustment amount must not be zero")
		}
	} else if !req.ExternalAmount.IsPositive() {
		return "", apperrors.Newf(apperrors.ErrInvalidAmount, "amount must be greater than zero")
	}
	if len(req.Description) > validation.MaxDescriptionLength {
		return "", apperrors.Newf(apperrors.ErrValidation, "description is too long")
	}
	return ch, nil
}

func (s *service) fromCache(ctx context.Context, stored string) (*models.Transaction, error) {
	id, err := strconv.ParseUint(stored, 10, 64)
	if err != nil {
		return nil, err
	}
	return s.ledger.Get(ctx, uint(id))
}
