// Command admin_seed creates a developer account with a settlement card
// account for SEED_USER_ID and prints its credentials together with an
// admin token for local use.
package main

import (
	"context"
	"fmt"
	"time"

	"cardpay/internal/config"
	"cardpay/internal/logger"
	"cardpay/internal/models"
	"cardpay/internal/repositories"
	"cardpay/internal/services/account"
	"cardpay/internal/services/developer"
	"cardpay/internal/utils"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()
	log := logger.New(cfg)

	userID := config.GetIntEnv("SEED_USER_ID", 0)
	if userID <= 0 {
		log.Fatal().Msg("SEED_USER_ID must be set")
	}
	name := config.GetEnv("SEED_DEVELOPER_NAME", "Seed Developer")

	db, err := repositories.Open(cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer repositories.Close(db)
	if err := repositories.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := repositories.NewStore(db)
	caller := models.Caller{UserID: uint(userID), Role: models.RoleAdmin}

	accounts := account.NewService(store.Accounts(), account.Config{
		IssuerPrefix: cfg.Account.IssuerPrefix,
		MaxPerUser:   cfg.Account.MaxPerUser,
		Currency:     cfg.Account.Currency,
	}, log, nil)
	developers := developer.NewService(store.Developers(), accounts, developer.Config{
		DefaultCommissionRate: cfg.Payment.DefaultCommissionRate,
	}, log)

	if existing, err := developers.Get(ctx, caller); err == nil {
		log.Info().Uint("developer_id", existing.ID).Msg("developer already exists, rotate keys through the API to get new credentials")
		return
	}

	settlement, err := accounts.CreateAccount(ctx, caller, name)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create settlement account")
	}
	if !settlement.IsActive() {
		if settlement, err = accounts.ActivateAccount(ctx, caller, settlement.ID); err != nil {
			log.Fatal().Err(err).Msg("failed to activate settlement account")
		}
	}

	rate := config.GetDecimalEnv("SEED_COMMISSION_RATE", cfg.Payment.DefaultCommissionRate)
	reg, err := developers.Register(ctx, caller, developer.Input{
		Name:                name,
		WebhookURL:          config.GetEnv("SEED_WEBHOOK_URL", ""),
		CommissionRate:      &rate,
		SettlementAccountID: &settlement.ID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register developer")
	}

	token, err := utils.GenerateToken(cfg.JWTSecret, caller, 24*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign admin token")
	}

	fmt.Printf("developer id:       %d\n", reg.Developer.ID)
	fmt.Printf("settlement account: %s (%s %s)\n", settlement.Number, settlement.Balance.StringFixed(2), settlement.Currency)
	fmt.Printf("api key:            %s\n", reg.APIKey)
	fmt.Printf("webhook secret:     %s\n", reg.WebhookSecret)
	fmt.Printf("admin token (24h):  %s\n", token)
}
