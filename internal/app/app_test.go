package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/config"
)

const testSecret = "cp-app-test-secret"

func newTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()

	t.Setenv("COINPAYMENTS_WEBHOOK_SECRET", testSecret)
	t.Setenv("BROKER_TYPE", "none")
	t.Setenv("REPLAY_BACKEND", "memory")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("API_JWT_SECRET", "")

	cfg := config.Load()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	app, err := New(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)
	return app
}

func invoiceBody(id string) []byte {
	return []byte(`{"event":"invoiceCompleted","invoice_id":"` + id + `","merchant_id":"m-1",` +
		`"amount":"10.50","currency":"BTC","status":"completed","created_at":"2024-01-01T00:00:00Z"}`)
}

func signedRequest(t *testing.T, app *App, body []byte) *http.Request {
	t.Helper()
	headers := app.Authenticator.Sign([]byte(testSecret), "", time.Now(), body)

	req := httptest.NewRequest(http.MethodPost, app.Config.WebhookPath, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestApp_WebhookEndToEnd(t *testing.T) {
	app := newTestApp(t, nil)
	handler := app.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, app, invoiceBody("inv-1")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	counts, err := app.Storage.CountByOutcome(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["accepted"])
}

func TestApp_RejectsUnsigned(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, app.Config.WebhookPath, bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApp_HealthAndSwagger(t *testing.T) {
	app := newTestApp(t, nil)
	handler := app.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/webhooks/coinpayments")
}

func TestApp_OperatorAPI(t *testing.T) {
	t.Run("disabled without secret", func(t *testing.T) {
		app := newTestApp(t, nil)
		assert.Nil(t, app.Auth)

		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("requires bearer token", func(t *testing.T) {
		app := newTestApp(t, func(c *config.Config) {
			c.APIJWTSecret = "0123456789abcdef0123456789abcdef"
		})
		require.NotNil(t, app.Auth)
		handler := app.Handler()

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		token, err := app.Auth.GenerateJWT("ops", "read", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestApp_RateLimit(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.RateLimitEnabled = true
		c.RateLimitRPS = "1"
		c.RateLimitBurst = "2"
	})
	require.NotNil(t, app.RateLimiter)
	handler := app.Handler()

	var last int
	for i := 0; i < 3; i++ {
		req := signedRequest(t, app, invoiceBody("inv-"+strconv.Itoa(i)))
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestApp_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.RateLimitEnabled = true
		c.RateLimitRPS = "1"
		c.RateLimitBurst = "1"
	})
	handler := app.Handler()

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := signedRequest(t, app, invoiceBody("spoof-"+strconv.Itoa(i)))
		req.RemoteAddr = "203.0.113.8:4000"
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i+1))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestApp_UnsupportedBroker(t *testing.T) {
	t.Setenv("COINPAYMENTS_WEBHOOK_SECRET", testSecret)
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "app.db"))
	cfg := config.Load()
	cfg.BrokerType = "nats"

	_, err := New(context.Background(), cfg, logging.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats")
}
