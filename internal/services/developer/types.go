package developer

import (
	"cardpay/internal/models"

	"github.com/shopspring/decimal"
)

const (
	apiKeyScheme = "cp"
	prefixBytes  = 6
	commissionDP = 4
)

type Input struct {
	Name                string
	WebhookURL          string
	CommissionRate      *decimal.Decimal
	SettlementAccountID *uint
}

// Registration carries credentials that are only ever shown once.
type Registration struct {
	Developer     *models.DeveloperAccount `json:"developer"`
	APIKey        string                   `json:"api_key"`
	WebhookSecret string                   `json:"webhook_secret"`
}

type Config struct {
	DefaultCommissionRate decimal.Decimal
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}
