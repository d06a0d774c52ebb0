package repositories_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"
	"cardpay/internal/repositories"
	"cardpay/internal/repositories/repotest"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedAccount(t *testing.T, store *repositories.Store, userID uint, slot int, number string, balance string) *models.Account {
	t.Helper()
	acc := &models.Account{
		UserID:     userID,
		Slot:       slot,
		Number:     number,
		HolderName: "Test Holder",
		Currency:   "USD",
		Status:     models.AccountStatusActive,
	}
	require.NoError(t, store.Accounts().Create(context.Background(), acc))
	if balance != "" && !dec(balance).IsZero() {
		_, err := store.Accounts().AdjustBalance(context.Background(), acc.ID, dec(balance), decimal.Zero)
		require.NoError(t, err)
	}
	got, err := store.Accounts().GetByID(context.Background(), acc.ID)
	require.NoError(t, err)
	return got
}

func TestAccountRepository_AdjustBalance(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	acc := seedAccount(t, store, 1, 1, "4000000000000001", "100")

	tests := []struct {
		name      string
		id        uint
		delta     string
		wantErr   error
		wantFinal string
	}{
		{name: "debit within balance", id: acc.ID, delta: "-40.50", wantFinal: "59.50"},
		{name: "credit", id: acc.ID, delta: "10", wantFinal: "69.50"},
		{name: "debit over balance", id: acc.ID, delta: "-70", wantErr: apperrors.ErrInsufficientFunds, wantFinal: "69.50"},
		{name: "unknown account", id: 9999, delta: "1", wantErr: apperrors.ErrAccountNotFound, wantFinal: "69.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Accounts().AdjustBalance(ctx, tt.id, dec(tt.delta), decimal.Zero)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}

			got, err := store.Accounts().GetByID(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFinal, got.Balance.StringFixed(2))
		})
	}
}

func TestAccountRepository_AdjustBalanceBlocked(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	acc := seedAccount(t, store, 1, 1, "4000000000000001", "50")

	_, err := store.Accounts().UpdateStatus(ctx, acc.ID, models.AccountStatusBlocked, "fraud review")
	require.NoError(t, err)

	_, err = store.Accounts().AdjustBalance(ctx, acc.ID, dec("5"), decimal.Zero)
	assert.True(t, errors.Is(err, apperrors.ErrAccountBlocked))

	_, err = store.Accounts().AdjustBalance(ctx, acc.ID, dec("-5"), decimal.Zero)
	assert.True(t, errors.Is(err, apperrors.ErrAccountBlocked))
}

func TestAccountRepository_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	acc := seedAccount(t, store, 1, 1, "4000000000000001", "100")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Accounts().AdjustBalance(ctx, acc.ID, dec("-20"), decimal.Zero)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := store.Accounts().GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, succeeded)
	assert.True(t, got.Balance.IsZero(), "balance %s", got.Balance)
}

func TestAccountRepository_UniqueSlotAndNumber(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	seedAccount(t, store, 1, 1, "4000000000000001", "")

	err := store.Accounts().Create(ctx, &models.Account{UserID: 1, Slot: 1, Number: "4000000000000002", HolderName: "x", Status: models.AccountStatusActive})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	err = store.Accounts().Create(ctx, &models.Account{UserID: 2, Slot: 1, Number: "4000000000000001", HolderName: "x", Status: models.AccountStatusActive})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
}

func TestTransactionRepository_FinalizeOnce(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	key := "topup-1"
	tx := &models.Transaction{
		Reference:      uuid.NewString(),
		Type:           models.TransactionTypeTopup,
		Amount:         dec("10"),
		Currency:       "USD",
		Status:         models.TransactionStatusPending,
		IdempotencyKey: &key,
	}
	require.NoError(t, store.Transactions().Create(ctx, tx))

	dup := *tx
	dup.ID = 0
	dup.Reference = uuid.NewString()
	assert.ErrorIs(t, store.Transactions().Create(ctx, &dup), repositories.ErrDuplicate)

	now := time.Now().UTC()
	ok, err := store.Transactions().Finalize(ctx, tx.ID, models.TransactionStatusCompleted, "", nil, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Transactions().Finalize(ctx, tx.ID, models.TransactionStatusFailed, "late", nil, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Transactions().GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, got.Status)
	assert.NotNil(t, got.FinalizedAt)
}

func newPaymentRequest(t *testing.T, store *repositories.Store, expiresAt time.Time) *models.PaymentRequest {
	t.Helper()
	req := &models.PaymentRequest{
		ID:          uuid.NewString(),
		DeveloperID: 1,
		Amount:      dec("25"),
		Currency:    "USD",
		Status:      models.PaymentStatusPending,
		ExpiresAt:   expiresAt,
	}
	require.NoError(t, store.PaymentRequests().Create(context.Background(), req))
	return req
}

func TestPaymentRequestRepository_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	now := time.Now().UTC()
	req := newPaymentRequest(t, store, now.Add(30*time.Minute))
	repo := store.PaymentRequests()

	ok, err := repo.Claim(ctx, req.ID, "a", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, req.ID, "b", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "live claim must not be taken over")

	later := now.Add(5 * time.Minute)
	ok, err = repo.Claim(ctx, req.ID, "b", later, later.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "stale claim is taken over")

	ok, err = repo.MarkCompleted(ctx, req.ID, "a", repositories.Completion{TransactionID: 1, At: later})
	require.NoError(t, err)
	assert.False(t, ok, "superseded claim cannot complete")

	ok, err = repo.MarkCompleted(ctx, req.ID, "b", repositories.Completion{
		TransactionID: 1, PayerUserID: 7, PayerAccountID: 3,
		Commission: dec("0.50"), NetAmount: dec("24.50"), At: later,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, got.Status)
	assert.Nil(t, got.ClaimToken)
	assert.Equal(t, "24.50", got.NetAmount.StringFixed(2))
}

func TestPaymentRequestRepository_ExpireSkipsLiveClaims(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	now := time.Now().UTC()
	repo := store.PaymentRequests()

	stale := newPaymentRequest(t, store, now.Add(-time.Minute))
	claimed := newPaymentRequest(t, store, now.Add(time.Second))
	fresh := newPaymentRequest(t, store, now.Add(time.Hour))

	ok, err := repo.Claim(ctx, claimed.ID, "tok", now, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	sweepAt := now.Add(time.Minute)
	cutoff := sweepAt.Add(-2 * time.Minute)
	list, err := repo.ListExpirable(ctx, sweepAt, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stale.ID, list[0].ID)

	ok, err = repo.Expire(ctx, stale.ID, sweepAt, cutoff)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Expire(ctx, claimed.ID, sweepAt, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Expire(ctx, fresh.ID, sweepAt, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPaymentRequestRepository_Stats(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	now := time.Now().UTC()
	repo := store.PaymentRequests()

	a := newPaymentRequest(t, store, now.Add(time.Hour))
	newPaymentRequest(t, store, now.Add(time.Hour))

	ok, err := repo.Claim(ctx, a.ID, "t", now, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.MarkCompleted(ctx, a.ID, "t", repositories.Completion{TransactionID: 1, At: now})
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := repo.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalPayments)
	assert.Equal(t, int64(1), stats.CompletedPayments)
	assert.Equal(t, "25.00", stats.TotalAmount.StringFixed(2))

	reqs, total, err := repo.ListByDeveloper(ctx, 1, string(models.PaymentStatusPending), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, reqs, 1)
}

func TestWebhookRepository_DedupeAndClaim(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	repo := store.Webhooks()
	now := time.Now().UTC()

	d := &models.WebhookDelivery{
		ID:               uuid.NewString(),
		PaymentRequestID: "pr-1",
		DeveloperID:      1,
		EventType:        models.EventPaymentCompleted,
		TargetURL:        "https://example.com/hook",
		Payload:          `{"event":"payment.completed"}`,
		Signature:        "abc",
		MaxAttempts:      6,
		Status:           models.DeliveryStatusQueued,
		NextAttemptAt:    &now,
	}
	require.NoError(t, repo.Create(ctx, d))

	dup := *d
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, &dup), repositories.ErrDuplicate)

	claimed, err := repo.ClaimDue(ctx, now, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := repo.ClaimDue(ctx, now, now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, again, "leased delivery is not handed out twice")

	require.NoError(t, repo.RecordAttempt(ctx, d.ID, repositories.AttemptResult{
		AttemptCount: 6, Status: models.DeliveryStatusExhausted, StatusCode: 500, Error: "status 500", At: now,
	}))

	ok, err := repo.Requeue(ctx, d.ID, 2, now)
	require.NoError(t, err)
	assert.False(t, ok, "other developers cannot requeue")

	ok, err = repo.Requeue(ctx, d.ID, 1, now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusQueued, got.Status)
	assert.Equal(t, 0, got.AttemptCount)
}

func TestStore_ExecuteInTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := repotest.NewStore(t)
	boom := errors.New("boom")

	err := store.ExecuteInTransaction(ctx, func(tx *repositories.Store) error {
		acc := &models.Account{UserID: 1, Slot: 1, Number: "4000000000000009", HolderName: "x", Status: models.AccountStatusActive}
		if err := tx.Accounts().Create(ctx, acc); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := store.Accounts().ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}
