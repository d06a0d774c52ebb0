package topup

import (
	"context"
	"errors"
	"testing"
	"time"

	"cardpay/internal/config"
	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"
	"cardpay/internal/repositories"
	"cardpay/internal/repositories/cache"
	"cardpay/internal/repositories/repotest"
	"cardpay/internal/services/account"
	"cardpay/internal/services/exchange"
	"cardpay/internal/services/ledger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

var (
	alice = models.Caller{UserID: 1, Role: models.RoleUser}
	bob   = models.Caller{UserID: 2, Role: models.RoleUser}
	admin = models.Caller{UserID: 9, Role: models.RoleAdmin}
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, reference string, amount decimal.Decimal, currency string) error {
	return m.Called(ctx, reference, amount, currency).Error(0)
}

// flakyLedger fails the commit of the first settlements it sees.
type flakyLedger struct {
	ledger.Service
	failures int
}

func (l *flakyLedger) Settle(ctx context.Context, id uint, st ledger.Settlement) (*models.Transaction, error) {
	if l.failures > 0 {
		l.failures--
		st.Within = func(*repositories.Store) error { return errors.New("connection reset") }
	}
	return l.Service.Settle(ctx, id, st)
}

// noRelease keeps reservations held, as a crashed request would.
type noRelease struct {
	*cache.Client
}

func (noRelease) Release(context.Context, string, string) error { return nil }

type fixture struct {
	accounts account.Service
	ledger   ledger.Service
	cache    *cache.Client
	redis    *miniredis.Miniredis
	rates    *exchange.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &fixture{
		accounts: account.NewService(store.Accounts(), account.Config{}, zerolog.Nop(), nil),
		ledger:   ledger.NewService(store, zerolog.Nop(), nil),
		cache:    cache.New(rdb, "test"),
		redis:    mr,
		rates: exchange.NewTable(config.RatesConfig{
			Stars:   decimal.RequireFromString("0.5"),
			Onchain: decimal.NewFromInt(250),
		}),
	}
}

func (f *fixture) service(store IdempotencyStore, verifier PurchaseVerifier) Service {
	return NewService(f.accounts, f.ledger, f.rates, store, verifier, Config{}, zerolog.Nop(), nil)
}

func (f *fixture) newAccount(t *testing.T, owner models.Caller) *models.Account {
	t.Helper()
	acc, err := f.accounts.CreateAccount(context.Background(), owner, "Holder")
	require.NoError(t, err)
	return acc
}

func (f *fixture) balance(t *testing.T, id uint) string {
	t.Helper()
	acc, err := f.accounts.GetAccount(context.Background(), admin, id)
	require.NoError(t, err)
	return acc.Balance.StringFixed(2)
}

func TestTopUp_Channels(t *testing.T) {
	tests := []struct {
		channel  string
		external string
		want     string
	}{
		{"purchased", "12.34", "12.34"},
		{"stars", "3", "1.50"},
		{"stars", "1", "0.50"},
		{"onchain", "0.001", "0.25"},
		{"ONCHAIN", "0.00001", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.channel+"/"+tt.external, func(t *testing.T) {
			f := newFixture(t)
			acc := f.newAccount(t, alice)

			tx, err := f.service(f.cache, nil).TopUp(context.Background(), alice, Request{
				AccountID:      acc.ID,
				Channel:        tt.channel,
				ExternalAmount: decimal.RequireFromString(tt.external),
				IdempotencyKey: "key-1",
			})
			if tt.want == "0.00" {
				assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.TransactionTypeTopup, tx.Type)
			assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
			assert.Equal(t, tt.want, tx.Amount.StringFixed(2))
			assert.Equal(t, tt.want, f.balance(t, acc.ID))
		})
	}
}

func TestTopUp_RejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	acc := f.newAccount(t, alice)
	svc := f.service(nil, nil)

	tests := []struct {
		name    string
		caller  models.Caller
		req     Request
		wantErr error
	}{
		{"unknown channel", alice, Request{AccountID: acc.ID, Channel: "paypal", ExternalAmount: decimal.NewFromInt(1), IdempotencyKey: "k"}, apperrors.ErrInvalidChannel},
		{"missing key", alice, Request{AccountID: acc.ID, Channel: "stars", ExternalAmount: decimal.NewFromInt(1)}, apperrors.ErrValidation},
		{"negative amount", alice, Request{AccountID: acc.ID, Channel: "stars", ExternalAmount: decimal.NewFromInt(-1), IdempotencyKey: "k"}, apperrors.ErrInvalidAmount},
		{"admin channel needs admin", alice, Request{AccountID: acc.ID, Channel: "admin", ExternalAmount: decimal.NewFromInt(1), IdempotencyKey: "k", Description: "x"}, apperrors.ErrForbidden},
		{"admin channel needs description", admin, Request{AccountID: acc.ID, Channel: "admin", ExternalAmount: decimal.NewFromInt(1), IdempotencyKey: "k"}, apperrors.ErrValidation},
		{"foreign account", bob, Request{AccountID: acc.ID, Channel: "stars", ExternalAmount: decimal.NewFromInt(2), IdempotencyKey: "k"}, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.TopUp(context.Background(), tt.caller, tt.req)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
	assert.Equal(t, "0.00", f.balance(t, acc.ID))
}

func TestTopUp_AdminAdjustment(t *testing.T) {
	f := newFixture(t)
	acc := f.newAccount(t, alice)
	svc := f.service(f.cache, nil)
	ctx := context.Background()

	tx, err := svc.TopUp(ctx, admin, Request{
		AccountID: acc.ID, Channel: "admin", ExternalAmount: decimal.NewFromInt(10),
		IdempotencyKey: "adj-1", Description: "goodwill credit",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeAdminAdjustment, tx.Type)

	_, err = svc.TopUp(ctx, admin, Request{
		AccountID: acc.ID, Channel: "admin", ExternalAmount: decimal.NewFromInt(-4),
		IdempotencyKey: "adj-2", Description: "chargeback",
	})
	require.NoError(t, err)
	assert.Equal(t, "6.00", f.balance(t, acc.ID))

	_, err = svc.TopUp(ctx, admin, Request{
		AccountID: acc.ID, Channel: "admin", ExternalAmount: decimal.NewFromInt(-7),
		IdempotencyKey: "adj-3", Description: "too much",
	})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds))
	assert.Equal(t, "6.00", f.balance(t, acc.ID))

	_, err = svc.TopUp(ctx, admin, Request{
		AccountID: acc.ID, Channel: "admin", ExternalAmount: decimal.NewFromInt(-7),
		IdempotencyKey: "adj-3", Description: "too much",
	})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientFunds), "a failed key replays its error, got %v", err)

	failed, err := f.ledger.FindByIdempotencyKey(ctx, "topup:admin:adj-3")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, failed.Status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", failed.Metadata["error_code"])
}

func TestTopUp_RepeatedKeyCreditsOnce(t *testing.T) {
	for name, withCache := range map[string]bool{"redis": true, "ledger only": false} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			acc := f.newAccount(t, alice)
			var store IdempotencyStore
			if withCache {
				store = f.cache
			}
			svc := f.service(store, nil)
			req := Request{AccountID: acc.ID, Channel: "stars", ExternalAmount: decimal.NewFromInt(20), IdempotencyKey: "once"}

			first, err := svc.TopUp(context.Background(), alice, req)
			require.NoError(t, err)
			second, err := svc.TopUp(context.Background(), alice, req)
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "10.00", f.balance(t, acc.ID))
		})
	}
}

func TestTopUp_SameKeyOtherChannelIsDistinct(t *testing.T) {
	f := newFixture(t)
	acc := f.newAccount(t, alice)
	svc := f.service(f.cache, nil)

	_, err := svc.TopUp(context.Background(), alice, Request{AccountID: acc.ID, Channel: "stars", ExternalAmount: decimal.NewFromInt(2), IdempotencyKey: "k"})
	require.NoError(t, err)
	_, err = svc.TopUp(context.Background(), alice, Request{AccountID: acc.ID, Channel: "purchased", ExternalAmount: decimal.NewFromInt(2), IdempotencyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "3.00", f.balance(t, acc.ID))
}

func TestTopUp_InFlightKey(t *testing.T) {
	f := newFixture(t)
	acc := f.newAccount(t, alice)
	ctx := context.Background()

	_, err := f.cache.Reserve(ctx, idempotencyScope, "topup:stars:busy", time.Minute)
	require.NoError(t, err)

	_, err = f.service(f.cache, nil).TopUp(ctx, alice, Request{
		AccountID: acc.ID, Channel: "stars", ExternalAmount: decimal.NewFromInt(2), IdempotencyKey: "busy",
	})
	assert.True(t, errors.Is(err, apperrors.ErrRequestInProgress))
	assert.True(t, apperrors.Transient(err))
	assert.Equal(t, "0.00", f.balance(t, acc.ID))
}

func TestTopUp_FailureReleasesKey(t *testing.T) {
	f := newFixture(t)
	acc := f.newAccount(t, alice)
	ctx := context.Background()

	verifier := new(MockVerifier)
	verifier.On("Verify", mock.Anything, "pi_123", mock.Anything, "USD").
		Return(apperrors.Newf(apperrors.ErrValidation, "payment intent pi_123 is processing")).Once()
	verifier.On("Verify", mock.Anything, "pi_123", mock.Anything, "USD").Return(nil).Once()

	svc := f.service(f.cache, verifier)
	req := Request{AccountID: acc.ID, Channel: "purchased", ExternalAmount: decimal.RequireFromString("9.99"), IdempotencyKey: "pi_123"}

	_, err := svc.TopUp(ctx, alice, req)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, "0.00", f.balance(t, acc.ID))

	_, err = svc.TopUp(ctx, alice, req)
	require.NoError(t, err)
	assert.Equal(t, "9.99", f.balance(t, acc.ID))
	verifier.AssertExpectations(t)
}

func TestTopUp_CacheOutageFallsBackToLedger(t *testing.T) {
	f := newFixture(t)
	acc := f.newAccount(t, alice)
	svc := f.service(f.cache, nil)
	f.redis.Close()

	req := Request{AccountID: acc.ID, Channel: "purchased", ExternalAmount: decimal.NewFromInt(5), IdempotencyKey: "k"}
	first, err := svc.TopUp(context.Background(), alice, req)
	require.NoError(t, err)
	second, err := svc.TopUp(context.Background(), alice, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "5.00", f.balance(t, acc.ID))
}

func TestTopUp_SettlementFailureIsRetryable(t *testing.T) {
	for name, withCache := range map[string]bool{"redis": true, "ledger only": false} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			acc := f.newAccount(t, alice)
			ctx := context.Background()
			var store IdempotencyStore
			if withCache {
				store = f.cache
			}
			flaky := &flakyLedger{Service: f.ledger, failures: 1}
			svc := NewService(f.accounts, flaky, f.rates, store, nil, Config{}, zerolog.Nop(), nil)
			req := Request{AccountID: acc.ID, Channel: "purchased", ExternalAmount: decimal.NewFromInt(100), IdempotencyKey: "pi_retry"}

			_, err := svc.TopUp(ctx, alice, req)
			require.Error(t, err)
			assert.True(t, apperrors.Transient(err), "got %v", err)
			assert.Equal(t, "0.00", f.balance(t, acc.ID))

			pending, err := f.ledger.FindByIdempotencyKey(ctx, "topup:purchased:pi_retry")
			require.NoError(t, err)
			assert.Equal(t, models.TransactionStatusPending, pending.Status)

			retried, err := svc.TopUp(ctx, alice, req)
			require.NoError(t, err)
			assert.Equal(t, pending.ID, retried.ID)
			assert.Equal(t, models.TransactionStatusCompleted, retried.Status)
			assert.Equal(t, "100.00", f.balance(t, acc.ID))

			replayed, err := svc.TopUp(ctx, alice, req)
			require.NoError(t, err)
			assert.Equal(t, pending.ID, replayed.ID)
			assert.Equal(t, "100.00", f.balance(t, acc.ID))
		})
	}
}

func TestTopUp_StaleReservationExpires(t *testing.T) {
	f := newFixture(t)
	acc := f.newAccount(t, alice)
	ctx := context.Background()
	req := Request{AccountID: acc.ID, Channel: "stars", ExternalAmount: decimal.NewFromInt(4), IdempotencyKey: "cb-1"}

	// the first request dies between reserving its key and releasing it
	dying := NewService(f.accounts, f.ledger, f.rates, &noRelease{Client: f.cache}, nil, Config{}, zerolog.Nop(), nil)
	_, err := dying.TopUp(ctx, alice, Request{AccountID: 999, Channel: "stars", ExternalAmount: decimal.NewFromInt(4), IdempotencyKey: "cb-1"})
	require.True(t, errors.Is(err, apperrors.ErrNotFound))

	svc := f.service(f.cache, nil)
	_, err = svc.TopUp(ctx, alice, req)
	require.True(t, errors.Is(err, apperrors.ErrRequestInProgress), "reservation still held, got %v", err)

	f.redis.FastForward(6 * time.Hour)

	tx, err := svc.TopUp(ctx, alice, req)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, "2.00", f.balance(t, acc.ID))

	// the finished result outlives the in-flight window
	f.redis.FastForward(6 * time.Hour)
	again, err := svc.TopUp(ctx, alice, req)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, again.ID)
	assert.Equal(t, "2.00", f.balance(t, acc.ID))
}

func TestCheckIntent(t *testing.T) {
	ok := &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 1250, Currency: "usd"}
	assert.NoError(t, checkIntent(ok, decimal.RequireFromString("12.50"), "USD"))

	pending := *ok
	pending.Status = stripe.PaymentIntentStatusProcessing
	assert.True(t, errors.Is(checkIntent(&pending, decimal.RequireFromString("12.50"), "USD"), apperrors.ErrValidation))

	assert.Error(t, checkIntent(ok, decimal.RequireFromString("12.49"), "USD"))
	assert.Error(t, checkIntent(ok, decimal.RequireFromString("12.50"), "EUR"))
	assert.Nil(t, NewStripeVerifier(""))
}
