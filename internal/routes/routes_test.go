package routes_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cardpay/internal/config"
	"cardpay/internal/handlers"
	"cardpay/internal/metrics"
	"cardpay/internal/middleware"
	"cardpay/internal/models"
	"cardpay/internal/repositories/repotest"
	"cardpay/internal/routes"
	"cardpay/internal/services/account"
	"cardpay/internal/services/developer"
	"cardpay/internal/services/exchange"
	"cardpay/internal/services/ledger"
	"cardpay/internal/services/notification"
	"cardpay/internal/services/payment"
	"cardpay/internal/services/topup"
	"cardpay/internal/services/transfer"
	"cardpay/internal/services/webhook"
	"cardpay/internal/utils"
	"cardpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "test-secret"

type harness struct {
	t   *testing.T
	app *fiber.App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zerolog.Nop()
	store := repotest.NewStore(t)
	registry := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(registry)
	notifier := notification.NewService(log)
	rates := exchange.NewTable(config.RatesConfig{
		Stars:   decimal.RequireFromString("0.5"),
		Onchain: decimal.NewFromInt(250),
	})

	accounts := account.NewService(store.Accounts(), account.Config{IssuerPrefix: "400", MaxPerUser: 3, Currency: "USD"}, log, collector)
	l := ledger.NewService(store, log, collector)
	transfers := transfer.NewService(accounts, l, notifier, transfer.Config{IssuerPrefix: "400"}, log, collector)
	topups := topup.NewService(accounts, l, rates, nil, nil, topup.Config{}, log, collector)
	developers := developer.NewService(store.Developers(), accounts, developer.Config{
		DefaultCommissionRate: decimal.RequireFromString("0.02"),
		BcryptCost:            bcrypt.MinCost,
	}, log)
	dispatcher := webhook.NewDispatcher(store.Webhooks(), webhook.Config{Timeout: time.Second}, log, collector)
	payments := payment.NewService(store, accounts, l, dispatcher, notifier, payment.Config{PublicURL: "https://pay.test"}, log, collector)

	app := fiber.New(fiber.Config{ErrorHandler: response.ErrorHandler})
	routes.SetupRoutes(app, routes.Handlers{
		Accounts:   handlers.NewAccountHandler(accounts, l),
		Transfers:  handlers.NewTransferHandler(transfers),
		TopUps:     handlers.NewTopUpHandler(topups, rates),
		Payments:   handlers.NewPaymentHandler(payments),
		Developers: handlers.NewDeveloperHandler(developers),
		Webhooks:   handlers.NewWebhookHandler(dispatcher),
		Health:     handlers.NewHealthHandler(store, nil),
	}, routes.Options{
		Auth:     middleware.NewAuthMiddleware(secret, log),
		APIKey:   developers,
		Gatherer: registry,
	})
	return &harness{t: t, app: app}
}

func token(t *testing.T, userID uint, role models.Role) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, models.Caller{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a JSON request and decodes the JSON reply into a map.
func (h *harness) do(method, path, bearer string, body interface{}) (int, map[string]interface{}) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(h.t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func obj(t *testing.T, m map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	v, ok := m[key].(map[string]interface{})
	require.True(t, ok, "missing object %q in %v", key, m)
	return v
}

func amount(t *testing.T, v interface{}) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(fmt.Sprint(v))
	require.NoError(t, err)
	return d
}

func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	return fmt.Sprint(obj(t, body, "error")["code"])
}

func (h *harness) openAccount(bearer, holder string) (uint, string) {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/api/accounts", bearer, map[string]string{"holder_name": holder})
	require.Equal(h.t, http.StatusCreated, status, body)
	acc := obj(h.t, body, "account")
	return uint(acc["id"].(float64)), acc["number"].(string)
}

func (h *harness) fund(accountID uint, amt, key string) {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/api/admin/adjustments", token(h.t, 99, models.RoleAdmin), map[string]interface{}{
		"account_id":      accountID,
		"amount":          amt,
		"description":     "opening balance",
		"idempotency_key": key,
	})
	require.Equal(h.t, http.StatusOK, status, body)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", obj(t, body, "services")["redis"])

	resp, err := h.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthBoundaries(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/api/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))

	status, _ = h.do(http.MethodGet, "/api/accounts", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = h.do(http.MethodPost, "/api/admin/payments/expire", token(t, 1, models.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(t, body))

	status, _ = h.do(http.MethodGet, "/v1/payments", "cp_000000000000_nope", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAdminWebhookRetryIsAsync(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodPost, "/api/admin/webhooks/retry", token(t, 99, models.RoleAdmin), nil)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "scheduled", body["status"])

	status, _ = h.do(http.MethodPost, "/api/admin/webhooks/retry", token(t, 1, models.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestTransferFlow(t *testing.T) {
	h := newHarness(t)
	alice, bob := token(t, 1, models.RoleUser), token(t, 2, models.RoleUser)

	aliceID, _ := h.openAccount(alice, "Alice")
	bobID, bobNumber := h.openAccount(bob, "Bob")
	h.fund(aliceID, "100.00", "seed-alice")

	status, body := h.do(http.MethodPost, "/api/transfers", alice, map[string]interface{}{
		"from_account_id": aliceID,
		"to_card_number":  bobNumber,
		"amount":          "30.50",
		"idempotency_key": "t-1",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", obj(t, body, "transaction")["status"])

	status, body = h.do(http.MethodGet, fmt.Sprintf("/api/accounts/%d", bobID), bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, amount(t, obj(t, body, "account")["balance"]).Equal(decimal.RequireFromString("30.50")))

	status, body = h.do(http.MethodPost, "/api/transfers", alice, map[string]interface{}{
		"from_account_id": aliceID,
		"to_card_number":  bobNumber,
		"amount":          "1000",
	})
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "INSUFFICIENT_FUNDS", errorCode(t, body))

	// Another user's account is invisible.
	status, _ = h.do(http.MethodGet, fmt.Sprintf("/api/accounts/%d/transactions", aliceID), bob, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = h.do(http.MethodGet, fmt.Sprintf("/api/accounts/%d/transactions?limit=1", aliceID), alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["transactions"], 1)
	assert.EqualValues(t, 2, obj(t, body, "pagination")["total"])
}

func TestTopUpValidation(t *testing.T) {
	h := newHarness(t)
	alice := token(t, 1, models.RoleUser)
	id, _ := h.openAccount(alice, "Alice")

	status, body := h.do(http.MethodPost, "/api/topups", alice, map[string]interface{}{
		"account_id": id, "channel": "paypal", "amount": "10", "idempotency_key": "k",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_CHANNEL", errorCode(t, body))

	status, body = h.do(http.MethodPost, "/api/topups", alice, map[string]interface{}{
		"account_id": id, "channel": "stars", "amount": "10", "idempotency_key": "k",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.True(t, amount(t, obj(t, body, "transaction")["amount"]).Equal(decimal.NewFromInt(5)))

	status, body = h.do(http.MethodGet, "/api/rates", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["rates"])
}

func TestDeveloperPaymentFlow(t *testing.T) {
	h := newHarness(t)
	merchant, payer := token(t, 1, models.RoleUser), token(t, 2, models.RoleUser)

	settlementID, _ := h.openAccount(merchant, "Shop")
	payerID, _ := h.openAccount(payer, "Payer")
	h.fund(payerID, "250", "seed-payer")

	status, body := h.do(http.MethodPost, "/api/developer", merchant, map[string]interface{}{
		"name":                  "Shop",
		"webhook_url":           "https://shop.example/hook",
		"settlement_account_id": settlementID,
	})
	require.Equal(t, http.StatusCreated, status, body)
	apiKey := body["api_key"].(string)
	require.NotEmpty(t, apiKey)

	status, body = h.do(http.MethodPost, "/v1/payment", apiKey, map[string]interface{}{
		"amount":      "100.00",
		"description": "order 42",
	})
	require.Equal(t, http.StatusCreated, status, body)
	created := obj(t, body, "payment")
	paymentID := created["id"].(string)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, "https://pay.test/pay/"+paymentID, created["payment_url"])

	status, body = h.do(http.MethodGet, "/api/payments/"+paymentID, payer, nil)
	require.Equal(t, http.StatusOK, status, body)

	status, body = h.do(http.MethodPost, "/api/payments/"+paymentID+"/complete", payer, map[string]interface{}{
		"source_account_id": settlementID,
	})
	assert.Equal(t, http.StatusNotFound, status, body)

	status, body = h.do(http.MethodPost, "/api/payments/"+paymentID+"/complete", payer, map[string]interface{}{
		"source_account_id": payerID,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "completed", obj(t, body, "payment")["status"])

	status, body = h.do(http.MethodPost, "/api/payments/"+paymentID+"/complete", payer, map[string]interface{}{
		"source_account_id": payerID,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", errorCode(t, body))

	status, body = h.do(http.MethodGet, fmt.Sprintf("/api/accounts/%d", settlementID), merchant, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, amount(t, obj(t, body, "account")["balance"]).Equal(decimal.NewFromInt(98)))

	status, body = h.do(http.MethodGet, "/v1/payments?status=completed", apiKey, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["payments"], 1)
	stats := obj(t, body, "stats")
	assert.EqualValues(t, 1, stats["completed_payments"])

	status, body = h.do(http.MethodGet, "/v1/webhooks", apiKey, nil)
	require.Equal(t, http.StatusOK, status, body)
	deliveries := body["deliveries"].([]interface{})
	require.Len(t, deliveries, 1)
	assert.Equal(t, "payment.completed", deliveries[0].(map[string]interface{})["event_type"])
}

func TestDeveloperCancel(t *testing.T) {
	h := newHarness(t)
	merchant := token(t, 1, models.RoleUser)
	settlementID, _ := h.openAccount(merchant, "Shop")

	_, body := h.do(http.MethodPost, "/api/developer", merchant, map[string]interface{}{
		"name": "Shop", "settlement_account_id": settlementID,
	})
	apiKey := body["api_key"].(string)

	status, body := h.do(http.MethodPost, "/v1/payment", apiKey, map[string]interface{}{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	_, body = h.do(http.MethodPost, "/v1/payment", apiKey, map[string]interface{}{"amount": "12.34"})
	id := obj(t, body, "payment")["id"].(string)

	status, body = h.do(http.MethodPost, "/v1/payments/"+id+"/cancel", apiKey, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "failed", obj(t, body, "payment")["status"])

	status, body = h.do(http.MethodPost, "/api/developer/keys", merchant, nil)
	require.Equal(t, http.StatusOK, status, body)
	status, _ = h.do(http.MethodGet, "/v1/payments/"+id, apiKey, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = h.do(http.MethodGet, "/v1/payments/"+id, body["api_key"].(string), nil)
	assert.Equal(t, http.StatusOK, status)
}
