package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"
	"cardpay/internal/repositories"
	"cardpay/internal/services/ledger"
	"cardpay/internal/services/webhook"
	"cardpay/internal/validation"

	"github.com/shopspring/decimal"
)

// settlement is the balance movement of one completion.
type settlement struct {
	payer      *models.Account
	target     *models.Account
	net        decimal.Decimal
	commission decimal.Decimal
}

// split returns the developer's net share and the commission. The net is
// rounded down so the commission absorbs the rounding.
func split(amount, rate decimal.Decimal) (net, commission decimal.Decimal) {
	net = amount.Mul(one.Sub(rate)).RoundDown(2)
	return net, amount.Sub(net)
}

func (s *service) CompletePaymentRequest(ctx context.Context, caller models.Caller, id string, sourceAccountID uint) (*models.PaymentRequest, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("complete_payment", time.Since(start))
	}()

	req, err := s.GetPaymentRequest(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if req.IsTerminal() || req.IsExpired(s.now()) {
		return nil, s.stateError(req, s.now())
	}

	token, err := s.claim(ctx, req)
	if err != nil {
		return nil, err
	}
	released := false
	defer func() {
		if !released {
			s.release(ctx, id, token)
		}
	}()

	dev, err := s.developer(ctx, s.store.Developers(), req.DeveloperID)
	if err != nil {
		return nil, err
	}
	plan, err := s.prepare(ctx, caller, req, dev, sourceAccountID)
	if err != nil {
		s.metrics.RecordError("complete_payment", string(apperrors.CodeOf(err)))
		return nil, err
	}

	log := s.log.With().Str("payment_id", id).Uint("payer_account_id", plan.payer.ID).Logger()

	entry := ledger.Entry{
		Type:             models.TransactionTypePayment,
		SourceAccountID:  &plan.payer.ID,
		PaymentRequestID: &req.ID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Description:      req.Description,
		Metadata: models.JSON{
			"developer_id": dev.ID,
			"net_amount":   plan.net.StringFixed(2),
			"commission":   plan.commission.StringFixed(2),
		},
	}
	if plan.target != nil {
		entry.DestinationAccountID = &plan.target.ID
	}
	tx, err := s.ledger.RecordPending(ctx, entry)
	if err != nil {
		return nil, err
	}

	legs := []ledger.Leg{{AccountID: plan.payer.ID, Delta: req.Amount.Neg()}}
	if plan.target != nil && plan.net.IsPositive() {
		legs = append(legs, ledger.Leg{AccountID: plan.target.ID, Delta: plan.net})
	}

	completedAt := s.now()
	var completed *models.PaymentRequest
	_, err = s.ledger.Settle(ctx, tx.ID, ledger.Settlement{
		Legs: legs,
		Within: func(txs *repositories.Store) error {
			ok, err := txs.PaymentRequests().MarkCompleted(ctx, id, token, repositories.Completion{
				TransactionID:  tx.ID,
				PayerUserID:    plan.payer.UserID,
				PayerAccountID: plan.payer.ID,
				Commission:     plan.commission,
				NetAmount:      plan.net,
				At:             completedAt,
			})
			if err != nil {
				return err
			}
			if !ok {
				return errClaimLost
			}
			completed, err = txs.PaymentRequests().GetByID(ctx, id)
			if err != nil {
				return err
			}
			_, err = s.webhooks.Enqueue(ctx, txs.Webhooks(), dev, webhook.Event{
				Type:    models.EventPaymentCompleted,
				Request: completed,
				At:      completedAt,
			})
			return err
		},
	})
	if err != nil {
		return nil, s.abandon(ctx, req, tx.ID, err)
	}
	released = true

	s.webhooks.Nudge()
	s.metrics.RecordPaymentTransition(string(models.PaymentStatusCompleted))
	log.Info().
		Uint("transaction_id", tx.ID).
		Str("amount", req.Amount.StringFixed(2)).
		Str("commission", plan.commission.StringFixed(2)).
		Msg("payment request completed")

	if s.notifier != nil {
		_ = s.notifier.SendPaymentNotification(ctx, plan.payer.UserID, completed)
	}
	return completed, nil
}

// prepare checks the payer and the developer before any money moves.
func (s *service) prepare(ctx context.Context, caller models.Caller, req *models.PaymentRequest, dev *models.DeveloperAccount, sourceAccountID uint) (*settlement, error) {
	if !dev.IsActive {
		return nil, apperrors.Newf(apperrors.ErrForbidden, "developer account is deactivated")
	}

	payer, err := s.accounts.GetAccount(ctx, caller, sourceAccountID)
	if err != nil {
		return nil, err
	}
	switch {
	case payer.IsBlocked():
		return nil, apperrors.Newf(apperrors.ErrAccountBlocked, "source account is blocked")
	case !payer.IsActive():
		return nil, apperrors.ErrAccountInactive
	case payer.Currency != req.Currency:
		return nil, apperrors.Newf(apperrors.ErrValidation, "source account currency %s does not match %s", payer.Currency, req.Currency)
	case payer.Balance.LessThan(req.Amount):
		return nil, apperrors.Newf(apperrors.ErrInsufficientFunds,
			"insufficient funds: balance %s, requested %s", payer.Balance.StringFixed(2), req.Amount.StringFixed(2))
	}

	net, commission := split(req.Amount, dev.CommissionRate)
	plan := &settlement{payer: payer, net: net, commission: commission}

	if dev.SettlementAccountID != nil {
		if *dev.SettlementAccountID == payer.ID {
			return nil, apperrors.ErrSameAccount
		}
		target, err := s.accounts.GetAccount(ctx, systemCaller, *dev.SettlementAccountID)
		if err != nil {
			return nil, err
		}
		if target.IsBlocked() {
			return nil, apperrors.Newf(apperrors.ErrAccountBlocked, "developer settlement account is blocked")
		}
		plan.target = target
	}
	return plan, nil
}

// abandon records why a completion did not settle. The settlement rolled
// back as a whole, so no balance needs repair.
func (s *service) abandon(ctx context.Context, req *models.PaymentRequest, txID uint, cause error) error {
	log := s.log.With().Str("payment_id", req.ID).Uint("transaction_id", txID).Logger()

	var legErr *ledger.LegError
	switch {
	case ledger.Definitive(cause) && errors.As(cause, &legErr) && legErr.Leg == 0:
		s.failTransaction(ctx, txID, ledger.FailedWith(legErr.Err), "debit failed: ")
		s.metrics.RecordError("complete_payment", string(apperrors.CodeOf(legErr.Err)))
		return legErr.Err
	case ledger.Definitive(cause) && errors.As(cause, &legErr):
		err := apperrors.Wrap(apperrors.ErrCompensatedFailure, legErr.Err)
		out := ledger.FailedWith(err)
		out.Metadata = out.Metadata.With("compensated", true)
		s.failTransaction(ctx, txID, out, "settlement credit failed: ")
		log.Warn().Err(legErr.Err).Msg("settlement credit refused, payer debit rolled back")
		return err
	case errors.Is(cause, errClaimLost):
		s.failTransaction(ctx, txID, ledger.Failed(cause.Error()), "completion failed: ")
		log.Warn().Msg("payment claim lost before completion, settlement rolled back")
		current, err := s.store.PaymentRequests().GetByID(ctx, req.ID)
		if err != nil {
			return err
		}
		return s.stateError(current, s.now())
	}

	err := apperrors.Wrap(apperrors.ErrCompensatedFailure, cause)
	s.failTransaction(ctx, txID, ledger.FailedWith(err), "completion failed: ")
	log.Error().Err(cause).Msg("payment completion failed, settlement rolled back")
	return err
}

func (s *service) failTransaction(ctx context.Context, txID uint, out ledger.Outcome, prefix string) {
	out.Reason = prefix + out.Reason
	if _, err := s.ledger.Finalize(ctx, txID, out); err != nil {
		s.log.Error().Err(err).Uint("transaction_id", txID).Msg("failed to finalize failed payment transaction")
	}
}

func (s *service) DeclinePaymentRequest(ctx context.Context, caller models.Caller, id, reason string) (*models.PaymentRequest, error) {
	req, err := s.GetPaymentRequest(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = reasonDeclined
	}
	return s.fail(ctx, req, reason)
}

func (s *service) FailPaymentRequest(ctx context.Context, dev *models.DeveloperAccount, id, reason string) (*models.PaymentRequest, error) {
	req, err := s.GetForDeveloper(ctx, dev, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = reasonCancelled
	}
	return s.fail(ctx, req, reason)
}

// fail moves a pending request to failed without touching any balance.
func (s *service) fail(ctx context.Context, req *models.PaymentRequest, reason string) (*models.PaymentRequest, error) {
	if len(reason) > validation.MaxDescriptionLength {
		return nil, apperrors.Newf(apperrors.ErrValidation, "reason is too long")
	}
	if req.IsTerminal() {
		return nil, s.stateError(req, s.now())
	}

	token, err := s.claim(ctx, req)
	if err != nil {
		return nil, err
	}

	at := s.now()
	var failed *models.PaymentRequest
	err = s.store.ExecuteInTransaction(ctx, func(txs *repositories.Store) error {
		ok, err := txs.PaymentRequests().MarkFailed(ctx, req.ID, token, reason, at)
		if err != nil {
			return err
		}
		if !ok {
			return errClaimLost
		}
		failed, err = txs.PaymentRequests().GetByID(ctx, req.ID)
		if err != nil {
			return err
		}
		dev, err := s.developer(ctx, txs.Developers(), req.DeveloperID)
		if err != nil {
			return err
		}
		_, err = s.webhooks.Enqueue(ctx, txs.Webhooks(), dev, webhook.Event{
			Type:    models.EventPaymentFailed,
			Request: failed,
			Error:   reason,
			At:      at,
		})
		return err
	})
	if err != nil {
		s.release(ctx, req.ID, token)
		if errors.Is(err, errClaimLost) {
			current, gerr := s.store.PaymentRequests().GetByID(ctx, req.ID)
			if gerr != nil {
				return nil, gerr
			}
			return nil, s.stateError(current, s.now())
		}
		return nil, err
	}

	s.webhooks.Nudge()
	s.metrics.RecordPaymentTransition(string(models.PaymentStatusFailed))
	s.log.Info().Str("payment_id", req.ID).Str("reason", reason).Msg("payment request failed")
	return failed, nil
}

// ExpireStalePaymentRequests expires pending requests past their deadline
// that no live completion holds.
func (s *service) ExpireStalePaymentRequests(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	cutoff := now.Add(-s.config.ClaimLease)
	devs := make(map[uint]*models.DeveloperAccount)
	expired := 0

	for {
		batch, err := s.store.PaymentRequests().ListExpirable(ctx, now, cutoff, expireBatch)
		if err != nil {
			return expired, err
		}

		progressed := false
		for i := range batch {
			ok, err := s.expireOne(ctx, &batch[i], now, cutoff, devs)
			if err != nil {
				return expired, err
			}
			if ok {
				expired++
				progressed = true
			}
		}
		if len(batch) < expireBatch || !progressed {
			break
		}
	}

	if expired > 0 {
		s.webhooks.Nudge()
		s.log.Info().Int("count", expired).Msg("expired stale payment requests")
	}
	return expired, nil
}

func (s *service) expireOne(ctx context.Context, req *models.PaymentRequest, now, cutoff time.Time, devs map[uint]*models.DeveloperAccount) (bool, error) {
	dev, ok := devs[req.DeveloperID]
	if !ok {
		var err error
		dev, err = s.developer(ctx, s.store.Developers(), req.DeveloperID)
		if err != nil {
			return false, err
		}
		devs[req.DeveloperID] = dev
	}

	var done bool
	err := s.store.ExecuteInTransaction(ctx, func(txs *repositories.Store) error {
		ok, err := txs.PaymentRequests().Expire(ctx, req.ID, now, cutoff)
		if err != nil || !ok {
			return err
		}
		done = true
		expired, err := txs.PaymentRequests().GetByID(ctx, req.ID)
		if err != nil {
			return err
		}
		_, err = s.webhooks.Enqueue(ctx, txs.Webhooks(), dev, webhook.Event{
			Type:    models.EventPaymentFailed,
			Request: expired,
			Error:   reasonExpired,
			At:      now,
		})
		return err
	})
	if err != nil {
		return false, err
	}
	if done {
		s.metrics.RecordPaymentTransition(string(models.PaymentStatusExpired))
	}
	return done, nil
}
