package developer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"
	"cardpay/internal/repositories"
	"cardpay/internal/validation"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type service struct {
	repo     repositories.DeveloperRepository
	accounts AccountService
	config   Config
	log      zerolog.Logger
}

func NewService(repo repositories.DeveloperRepository, accounts AccountService, config Config, log zerolog.Logger) Service {
	if repo == nil || accounts == nil {
		panic("developer repository and account service are required")
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &service{
		repo:     repo,
		accounts: accounts,
		config:   config,
		log:      log.With().Str("component", "developer").Logger(),
	}
}

func (s *service) Register(ctx context.Context, caller models.Caller, input Input) (*Registration, error) {
	rate, err := s.checkInput(ctx, caller, input)
	if err != nil {
		return nil, err
	}

	creds, err := newCredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.secret), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash api key: %w", err)
	}

	dev := &models.DeveloperAccount{
		UserID:              caller.UserID,
		Name:                strings.TrimSpace(input.Name),
		APIKeyPrefix:        creds.prefix,
		APIKeyHash:          string(hash),
		WebhookSecret:       creds.webhookSecret,
		CommissionRate:      rate,
		WebhookURL:          input.WebhookURL,
		SettlementAccountID: input.SettlementAccountID,
		IsActive:            true,
	}
	if err := s.repo.Create(ctx, dev); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperrors.Newf(apperrors.ErrInvalidState, "user already has a developer account")
		}
		return nil, err
	}

	s.log.Info().Uint("developer_id", dev.ID).Uint("user_id", caller.UserID).Msg("developer registered")
	return &Registration{Developer: dev, APIKey: creds.apiKey(), WebhookSecret: creds.webhookSecret}, nil
}

func (s *service) checkInput(ctx context.Context, caller models.Caller, input Input) (decimal.Decimal, error) {
	v := validation.New()
	v.Check(strings.TrimSpace(input.Name) != "", "name", "must be provided")
	v.MaxLength("name", input.Name, 100)
	v.OptionalURL("webhook_url", input.WebhookURL)

	rate := s.config.DefaultCommissionRate
	if input.CommissionRate != nil {
		if !caller.IsAdmin() {
			return decimal.Zero, apperrors.Newf(apperrors.ErrForbidden, "only admins can set a commission rate")
		}
		rate = *input.CommissionRate
	}
	v.Check(!rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(1)), "commission_rate", "must be between 0 and 1")
	v.Check(rate.Equal(rate.Truncate(commissionDP)), "commission_rate", "must have at most 4 decimal places")
	if err := v.Err(); err != nil {
		return decimal.Zero, err
	}

	if input.SettlementAccountID != nil {
		acc, err := s.accounts.GetAccount(ctx, caller, *input.SettlementAccountID)
		if err != nil {
			return decimal.Zero, err
		}
		if acc.IsBlocked() {
			return decimal.Zero, apperrors.Newf(apperrors.ErrAccountBlocked, "settlement account is blocked")
		}
	}
	return rate, nil
}

func (s *service) Get(ctx context.Context, caller models.Caller) (*models.DeveloperAccount, error) {
	return s.repo.GetByUserID(ctx, caller.UserID)
}

func (s *service) RotateKeys(ctx context.Context, caller models.Caller) (*Registration, error) {
	dev, err := s.repo.GetByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	creds, err := newCredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.secret), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash api key: %w", err)
	}
	if err := s.repo.UpdateKeys(ctx, dev.ID, creds.prefix, string(hash), creds.webhookSecret); err != nil {
		return nil, err
	}

	dev.APIKeyPrefix = creds.prefix
	dev.APIKeyHash = string(hash)
	dev.WebhookSecret = creds.webhookSecret
	s.log.Info().Uint("developer_id", dev.ID).Msg("developer keys rotated")
	return &Registration{Developer: dev, APIKey: creds.apiKey(), WebhookSecret: creds.webhookSecret}, nil
}

func (s *service) UpdateWebhook(ctx context.Context, caller models.Caller, url string) (*models.DeveloperAccount, error) {
	if url != "" && !validation.ValidURL(url) {
		return nil, apperrors.Newf(apperrors.ErrValidation, "webhook_url must be an http(s) URL")
	}
	dev, err := s.repo.GetByUserID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateWebhookURL(ctx, dev.ID, url); err != nil {
		return nil, err
	}
	dev.WebhookURL = url
	return dev, nil
}

func (s *service) Deactivate(ctx context.Context, caller models.Caller, developerID uint) error {
	if err := caller.Require(models.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, developerID, false); err != nil {
		return err
	}
	s.log.Warn().Uint("developer_id", developerID).Uint("admin_id", caller.UserID).Msg("developer deactivated")
	return nil
}

func (s *service) Authenticate(ctx context.Context, apiKey string) (*models.DeveloperAccount, error) {
	prefix, secret, ok := splitKey(apiKey)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnauthorized, "malformed api key")
	}

	dev, err := s.repo.GetByKeyPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.ErrUnauthorized, "invalid api key")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(dev.APIKeyHash), []byte(secret)); err != nil {
		return nil, apperrors.Newf(apperrors.ErrUnauthorized, "invalid api key")
	}
	if !dev.IsActive {
		return nil, apperrors.Newf(apperrors.ErrForbidden, "developer account is deactivated")
	}
	return dev, nil
}
