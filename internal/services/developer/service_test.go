package developer

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"
	"cardpay/internal/repositories/repotest"
	"cardpay/internal/services/account"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var (
	alice = models.Caller{UserID: 1, Role: models.RoleUser}
	bob   = models.Caller{UserID: 2, Role: models.RoleUser}
	admin = models.Caller{UserID: 9, Role: models.RoleAdmin}
)

func newTestService(t *testing.T) (Service, account.Service) {
	t.Helper()
	store := repotest.NewStore(t)
	accounts := account.NewService(store.Accounts(), account.Config{}, zerolog.Nop(), nil)
	svc := NewService(store.Developers(), accounts, Config{
		DefaultCommissionRate: decimal.RequireFromString("0.02"),
		BcryptCost:            bcrypt.MinCost,
	}, zerolog.Nop())
	return svc, accounts
}

func TestRegister_IssuesWorkingKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, alice, Input{Name: "Shop", WebhookURL: "https://shop.example/hooks"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reg.APIKey, "cp_"+reg.Developer.APIKeyPrefix+"_"))
	assert.True(t, strings.HasPrefix(reg.WebhookSecret, "whsec_"))
	assert.Equal(t, "0.02", reg.Developer.CommissionRate.String())
	assert.NotContains(t, reg.Developer.APIKeyHash, reg.APIKey)

	dev, err := svc.Authenticate(ctx, reg.APIKey)
	require.NoError(t, err)
	assert.Equal(t, reg.Developer.ID, dev.ID)

	_, err = svc.Register(ctx, alice, Input{Name: "Second"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))
}

func TestRegister_Validation(t *testing.T) {
	svc, accounts := newTestService(t)
	ctx := context.Background()
	bobs, err := accounts.CreateAccount(ctx, bob, "Bob")
	require.NoError(t, err)
	rate := decimal.RequireFromString("0.1")
	tooHigh := decimal.RequireFromString("1.5")

	tests := []struct {
		name    string
		caller  models.Caller
		input   Input
		wantErr error
	}{
		{"missing name", alice, Input{}, apperrors.ErrValidation},
		{"bad url", alice, Input{Name: "x", WebhookURL: "ftp://nope"}, apperrors.ErrValidation},
		{"user sets commission", alice, Input{Name: "x", CommissionRate: &rate}, apperrors.ErrForbidden},
		{"commission above one", admin, Input{Name: "x", CommissionRate: &tooHigh}, apperrors.ErrValidation},
		{"foreign settlement account", alice, Input{Name: "x", SettlementAccountID: &bobs.ID}, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.caller, tt.input)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestAuthenticate_Rejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, alice, Input{Name: "Shop"})
	require.NoError(t, err)

	for _, key := range []string{
		"",
		"garbage",
		"cp_" + reg.Developer.APIKeyPrefix + "_wrongsecret",
		"cp_000000000000_" + strings.TrimPrefix(reg.APIKey, "cp_"+reg.Developer.APIKeyPrefix+"_"),
	} {
		_, err := svc.Authenticate(ctx, key)
		assert.True(t, errors.Is(err, apperrors.ErrUnauthorized), "key %q: %v", key, err)
	}
}

func TestRotateKeys_InvalidatesOldKey(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, alice, Input{Name: "Shop"})
	require.NoError(t, err)

	rotated, err := svc.RotateKeys(ctx, alice)
	require.NoError(t, err)
	assert.NotEqual(t, reg.APIKey, rotated.APIKey)
	assert.NotEqual(t, reg.WebhookSecret, rotated.WebhookSecret)

	_, err = svc.Authenticate(ctx, reg.APIKey)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	_, err = svc.Authenticate(ctx, rotated.APIKey)
	assert.NoError(t, err)
}

func TestDeactivate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	reg, err := svc.Register(ctx, alice, Input{Name: "Shop"})
	require.NoError(t, err)

	assert.True(t, errors.Is(svc.Deactivate(ctx, alice, reg.Developer.ID), apperrors.ErrForbidden))
	require.NoError(t, svc.Deactivate(ctx, admin, reg.Developer.ID))

	_, err = svc.Authenticate(ctx, reg.APIKey)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))
}

func TestUpdateWebhook(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.UpdateWebhook(ctx, alice, "https://a.example")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = svc.Register(ctx, alice, Input{Name: "Shop"})
	require.NoError(t, err)
	_, err = svc.UpdateWebhook(ctx, alice, "not a url")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	dev, err := svc.UpdateWebhook(ctx, alice, "https://a.example/hook")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/hook", dev.WebhookURL)

	stored, err := svc.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/hook", stored.WebhookURL)
}

func TestSplitKey(t *testing.T) {
	prefix, secret, ok := splitKey("cp_abcdef123456_s3cr_et-x")
	require.True(t, ok)
	assert.Equal(t, "abcdef123456", prefix)
	assert.Equal(t, "s3cr_et-x", secret)

	_, _, ok = splitKey("cp_short_secret")
	assert.False(t, ok)
}
