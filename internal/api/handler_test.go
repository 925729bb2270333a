package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/currency-converter/internal/api"
	"github.com/ayo6706/currency-converter/internal/api/middleware"
	"github.com/ayo6706/currency-converter/internal/config"
	"github.com/ayo6706/currency-converter/internal/domain"
	"github.com/ayo6706/currency-converter/internal/events"
	"github.com/ayo6706/currency-converter/internal/gateway"
	"github.com/ayo6706/currency-converter/internal/idempotency"
	"github.com/ayo6706/currency-converter/internal/ledger"
	"github.com/ayo6706/currency-converter/internal/observability"
	"github.com/ayo6706/currency-converter/internal/repository"
	"github.com/ayo6706/currency-converter/internal/service"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "currency-converter-test"
	testJWTAudience = "currency-converter-api-test"
)

type testAPI struct {
	handler http.Handler
	store   *ledger.Store
	auth    *middleware.JWTAuth
}

type setupOption func(*setupState)

type setupState struct {
	wrap func(*ledger.Store) service.LedgerStore
}

func withBrokenCredits(currency domain.Currency) setupOption {
	return func(s *setupState) {
		s.wrap = func(store *ledger.Store) service.LedgerStore {
			return &brokenCreditStore{Store: store, broken: currency}
		}
	}
}

func setupAPI(t *testing.T, opts ...setupOption) *testAPI {
	t.Helper()
	observability.Init()

	state := setupState{wrap: func(s *ledger.Store) service.LedgerStore { return s }}
	for _, opt := range opts {
		opt(&state)
	}

	kv := repository.NewMemoryKV()
	store := ledger.NewStore(kv, zap.NewNop())
	store.InitializeWithBalances(context.Background(), map[domain.Currency]decimal.Decimal{
		domain.EUR: decimal.NewFromInt(1000),
		domain.USD: decimal.NewFromInt(5000),
	})
	ledgerStore := state.wrap(store)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}
	auth, err := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	require.NoError(t, err)

	accountSvc := service.NewAccountService(ledgerStore)
	exchangeSvc := service.NewExchangeService(ledgerStore, service.DefaultCommissionPolicy(), events.NopPublisher{}, nil, zap.NewNop())
	quoteSvc := service.NewQuoteService(gateway.NewMockRateProvider())
	reconcileSvc := service.NewReconciliationService(ledgerStore, kv)
	idemStore := idempotency.NewStore(redisClient, cfg.IdempotencyTTL)

	router := api.NewRouter(cfg, zap.NewNop(), auth, nil, redisClient, idemStore, accountSvc, exchangeSvc, quoteSvc, reconcileSvc)
	return &testAPI{handler: router.Routes(), store: store, auth: auth}
}

func (a *testAPI) token(t *testing.T, role string) string {
	t.Helper()
	token, err := a.auth.IssueToken(uuid.NewString(), role, time.Hour)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testAPI) exchange(t *testing.T, token string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, http.MethodPost, "/v1/exchanges", token, body, map[string]string{"Idempotency-Key": uuid.NewString()})
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodPost, "/v1/exchanges", "", map[string]any{}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/exchanges", body["instance"])
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, w.Header().Get("X-Trace-ID"), body["request_id"])
}

func TestListAndGetAccounts(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/v1/accounts", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		TransactionNumber uint64 `json:"transaction_number"`
		Accounts          []struct {
			ID       string `json:"id"`
			Currency string `json:"currency"`
			Amount   string `json:"amount"`
		} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.Accounts, len(domain.AllCurrencies()))
	assert.Equal(t, uint64(0), snap.TransactionNumber)

	w = a.do(t, http.MethodGet, "/v1/accounts/usd", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "USD", body["currency"])
	assert.Equal(t, "5000", body["amount"])

	w = a.do(t, http.MethodGet, "/v1/accounts/CHF", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateExchange(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, middleware.RoleUser)

	w := a.exchange(t, token, map[string]any{
		"source_amount":        "100",
		"source_currency":      "EUR",
		"destination_amount":   "109",
		"destination_currency": "USD",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, domain.OperationExchange, body["kind"])
	assert.Equal(t, "0", body["commission_fee"])
	assert.Equal(t, float64(0), body["transaction_number"])
	assert.NotEmpty(t, body["timestamp"])

	assert.True(t, dec("900").Equal(a.store.Balance(domain.EUR)))
	assert.True(t, dec("5109").Equal(a.store.Balance(domain.USD)))
}

func TestCreateExchangeUsesQuoteWhenAmountOmitted(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, middleware.RoleUser)

	w := a.exchange(t, token, map[string]any{
		"source_amount":        "100",
		"source_currency":      "EUR",
		"destination_currency": "GBP",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, dec("87").Equal(a.store.Balance(domain.GBP)))
}

func TestCreateExchangeErrorMapping(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, middleware.RoleUser)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{
			name:   "same currency",
			body:   map[string]any{"source_amount": "10", "source_currency": "EUR", "destination_amount": "10", "destination_currency": "EUR"},
			status: http.StatusBadRequest,
			code:   "same_currency",
		},
		{
			name:   "nothing to exchange",
			body:   map[string]any{"source_amount": "0", "source_currency": "EUR", "destination_amount": "1", "destination_currency": "USD"},
			status: http.StatusBadRequest,
			code:   "withdrawal_failed",
		},
		{
			name:   "not enough money",
			body:   map[string]any{"source_amount": "1000.01", "source_currency": "EUR", "destination_amount": "1090", "destination_currency": "USD"},
			status: http.StatusUnprocessableEntity,
			code:   "withdrawal_failed",
		},
		{
			name:   "deposit failed",
			body:   map[string]any{"source_amount": "10", "source_currency": "EUR", "destination_amount": "0", "destination_currency": "USD"},
			status: http.StatusConflict,
			code:   "deposit_failed",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := a.exchange(t, token, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
			assert.Equal(t, tc.code, decodeBody(t, w)["code"])
		})
	}

	w := a.exchange(t, token, map[string]any{"source_amount": "1", "source_currency": "CHF", "destination_amount": "1", "destination_currency": "USD"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.exchange(t, token, map[string]any{"source_amount": "1", "source_currency": "EUR", "destination_amount": "1", "destination_currency": "USD", "extra": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.True(t, dec("1000").Equal(a.store.Balance(domain.EUR)))
	assert.True(t, dec("5000").Equal(a.store.Balance(domain.USD)))
	assert.Equal(t, uint64(0), a.store.TransactionNumber())
}

func TestCreateExchangeRollbackFailed(t *testing.T) {
	a := setupAPI(t, withBrokenCredits(domain.EUR))
	token := a.token(t, middleware.RoleUser)

	w := a.exchange(t, token, map[string]any{
		"source_amount":        "10",
		"source_currency":      "EUR",
		"destination_amount":   "0",
		"destination_currency": "USD",
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "rollback_failed", decodeBody(t, w)["code"])

	w = a.do(t, http.MethodGet, "/health/ready", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = a.exchange(t, token, map[string]any{
		"source_amount":        "10",
		"source_currency":      "EUR",
		"destination_amount":   "10.9",
		"destination_currency": "USD",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExchangeIdempotency(t *testing.T) {
	a := setupAPI(t)
	token := a.token(t, middleware.RoleUser)
	key := uuid.NewString()
	payload := map[string]any{
		"source_amount":        "50",
		"source_currency":      "EUR",
		"destination_amount":   "54.5",
		"destination_currency": "USD",
	}

	w1 := a.do(t, http.MethodPost, "/v1/exchanges", token, payload, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, w1.Code, w1.Body.String())

	w2 := a.do(t, http.MethodPost, "/v1/exchanges", token, payload, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, "true", w2.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, w1.Body.String(), w2.Body.String())

	assert.True(t, dec("950").Equal(a.store.Balance(domain.EUR)))
	assert.Equal(t, uint64(1), a.store.TransactionNumber())

	payload["source_amount"] = "51"
	w3 := a.do(t, http.MethodPost, "/v1/exchanges", token, payload, map[string]string{"Idempotency-Key": key})
	assert.Equal(t, http.StatusConflict, w3.Code)

	w4 := a.do(t, http.MethodPost, "/v1/exchanges", token, payload, nil)
	assert.Equal(t, http.StatusBadRequest, w4.Code)
}

func TestResetUserDataRequiresAdmin(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodPost, "/v1/ledger/reset", a.token(t, middleware.RoleUser), nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, "/v1/ledger/reset", a.token(t, middleware.RoleAdmin), nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, dec("10000").Equal(a.store.Balance(domain.EUR)))
	assert.True(t, dec("500").Equal(a.store.Balance(domain.USD)))
	assert.True(t, a.store.Balance(domain.GBP).IsZero())
}

func TestReconcileEndpoint(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodPost, "/v1/ledger/reconcile", a.token(t, middleware.RoleAdmin), nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Empty(t, body["violations"])
}

func TestGetQuote(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/v1/quotes?amount=100&from=EUR&to=JPY", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var quote struct {
		Operation struct {
			DestinationAmount string `json:"destination_amount"`
		} `json:"operation"`
		Rate string `json:"rate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, "14400", quote.Operation.DestinationAmount)
	assert.Equal(t, "144", quote.Rate)

	for _, path := range []string{
		"/v1/quotes?amount=abc&from=EUR&to=USD",
		"/v1/quotes?amount=0&from=EUR&to=USD",
		"/v1/quotes?amount=1&from=CHF&to=USD",
	} {
		w := a.do(t, http.MethodGet, path, "", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestInvalidTokens(t *testing.T) {
	a := setupAPI(t)
	other, err := middleware.NewJWTAuth("another-secret-0123456789-another", testJWTIssuer, testJWTAudience)
	require.NoError(t, err)
	forged, err := other.IssueToken(uuid.NewString(), middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	expired, err := a.auth.IssueToken(uuid.NewString(), middleware.RoleAdmin, -time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"forged":  "Bearer " + forged,
		"expired": "Bearer " + expired,
		"format":  "Token abc",
	} {
		t.Run(name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, "/v1/ledger/reset", "", nil, map[string]string{"Authorization": header})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	a := setupAPI(t)

	cases := []struct {
		name string
		path string
	}{
		{name: "live", path: "/health/live"},
		{name: "ready", path: "/health/ready"},
		{name: "metrics", path: "/metrics"},
		{name: "openapi", path: "/openapi.yaml"},
		{name: "swagger", path: "/swagger/index.html"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := a.do(t, http.MethodGet, tc.path, "", nil, nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

// brokenCreditStore makes every credit to one currency fail so the
// compensating deposit of an exchange cannot succeed.
type brokenCreditStore struct {
	*ledger.Store
	broken domain.Currency
}

func (s *brokenCreditStore) Update(ctx context.Context, fn func(b ledger.Book) error) error {
	return s.Store.Update(ctx, func(b ledger.Book) error {
		return fn(brokenCreditBook{Book: b, broken: s.broken})
	})
}

type brokenCreditBook struct {
	ledger.Book
	broken domain.Currency
}

func (b brokenCreditBook) AdjustBalance(currency domain.Currency, delta decimal.Decimal) error {
	if currency == b.broken && delta.IsPositive() {
		return ledger.ErrAccountNotFound
	}
	return b.Book.AdjustBalance(currency, delta)
}
