package account

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

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type service struct {
	repo      repositories.AccountRepository
	config    Config
	log       zerolog.Logger
	metrics   metrics.Collector
	newNumber func(prefix string) (string, error)
}

// NewService creates a new account service
func NewService(repo repositories.AccountRepository, config Config, log zerolog.Logger, m metrics.Collector) Service {
	if repo == nil {
		panic("repo is required")
	}
	if config.IssuerPrefix == "" {
		config.IssuerPrefix = DefaultIssuerPrefix
	}
	if config.MaxPerUser <= 0 {
		config.MaxPerUser = DefaultMaxPerUser
	}
	if config.Currency == "" {
		config.Currency = DefaultCurrency
	}
	if config.NumberRetries <= 0 {
		config.NumberRetries = DefaultNumberRetries
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}

	return &service{
		repo:      repo,
		config:    config,
		log:       log.With().Str("component", "account").Logger(),
		metrics:   m,
		newNumber: generateNumber,
	}
}

func (s *service) CreateAccount(ctx context.Context, caller models.Caller, holderName string) (*models.Account, error) {
	holderName = strings.TrimSpace(holderName)
	if holderName == "" {
		return nil, apperrors.Newf(apperrors.ErrValidation, "holder name is required")
	}

	status := models.AccountStatusActive
	if s.config.RequireActivation {
		status = models.AccountStatusPending
	}

	for attempt := 0; attempt < s.config.NumberRetries; attempt++ {
		existing, err := s.repo.ListByUser(ctx, caller.UserID)
		if err != nil {
			return nil, err
		}
		slot := s.freeSlot(existing)
		if slot == 0 {
			s.metrics.RecordError("create_account", string(apperrors.CodeLimitExceeded))
			return nil, apperrors.Newf(apperrors.ErrLimitExceeded,
				"a user can hold at most %d accounts", s.config.MaxPerUser)
		}

		number, err := s.newNumber(s.config.IssuerPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to generate account number: %w", err)
		}

		acc := &models.Account{
			UserID:     caller.UserID,
			Slot:       slot,
			Number:     number,
			HolderName: holderName,
			Currency:   s.config.Currency,
			Status:     status,
		}
		err = s.repo.Create(ctx, acc)
		if err == nil {
			s.metrics.RecordOperationResult("create_account", "success")
			s.log.Info().Uint("user_id", caller.UserID).Uint("account_id", acc.ID).Msg("account created")
			return acc, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return nil, err
		}
		// number or slot taken concurrently, re-read and try again
		s.log.Debug().Int("attempt", attempt+1).Msg("account insert collided")
	}

	return nil, fmt.Errorf("failed to allocate account after %d attempts", s.config.NumberRetries)
}

func (s *service) freeSlot(existing []models.Account) int {
	used := make(map[int]bool, len(existing))
	for _, a := range existing {
		used[a.Slot] = true
	}
	for slot := 1; slot <= s.config.MaxPerUser; slot++ {
		if !used[slot] {
			return slot
		}
	}
	return 0
}

func (s *service) GetAccount(ctx context.Context, caller models.Caller, id uint) (*models.Account, error) {
	acc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(acc.UserID) {
		// do not reveal that the account exists
		return nil, apperrors.ErrAccountNotFound
	}
	return acc, nil
}

func (s *service) GetByNumber(ctx context.Context, number string) (*models.Account, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *service) ListAccounts(ctx context.Context, caller models.Caller) ([]models.Account, error) {
	return s.repo.ListByUser(ctx, caller.UserID)
}

func (s *service) AdjustBalance(ctx context.Context, id uint, delta, minResult decimal.Decimal) (*models.Account, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration("adjust_balance", time.Since(start))
	}()

	acc, err := s.repo.AdjustBalance(ctx, id, delta, minResult)
	if err != nil {
		s.metrics.RecordError("adjust_balance", string(apperrors.CodeOf(err)))
		return nil, err
	}
	return acc, nil
}

func (s *service) BlockAccount(ctx context.Context, caller models.Caller, id uint, reason string) (*models.Account, error) {
	if err := caller.Require(models.RoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Newf(apperrors.ErrValidation, "a reason is required to block an account")
	}
	acc, err := s.repo.UpdateStatus(ctx, id, models.AccountStatusBlocked, reason)
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("account_id", id).Uint("admin_id", caller.UserID).Str("reason", reason).Msg("account blocked")
	return acc, nil
}

func (s *service) ActivateAccount(ctx context.Context, caller models.Caller, id uint) (*models.Account, error) {
	if err := caller.Require(models.RoleAdmin); err != nil {
		return nil, err
	}
	acc, err := s.repo.UpdateStatus(ctx, id, models.AccountStatusActive, "")
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("account_id", id).Uint("admin_id", caller.UserID).Msg("account activated")
	return acc, nil
}
