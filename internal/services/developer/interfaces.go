package developer

import (
	"context"

	"cardpay/internal/models"
)

// AccountService is used to check settlement accounts.
type AccountService interface {
	GetAccount(ctx context.Context, caller models.Caller, id uint) (*models.Account, error)
}

// Service manages developer accounts and their API credentials.
type Service interface {
	Register(ctx context.Context, caller models.Caller, input Input) (*Registration, error)
	Get(ctx context.Context, caller models.Caller) (*models.DeveloperAccount, error)
	// RotateKeys replaces both the API key and the webhook secret.
	RotateKeys(ctx context.Context, caller models.Caller) (*Registration, error)
	UpdateWebhook(ctx context.Context, caller models.Caller, url string) (*models.DeveloperAccount, error)
	Deactivate(ctx context.Context, caller models.Caller, developerID uint) error
	// Authenticate resolves an API key to an active developer account.
	Authenticate(ctx context.Context, apiKey string) (*models.DeveloperAccount, error)
}
