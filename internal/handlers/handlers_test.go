package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/clock"
	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/filter"
	"coinpayments-webhooks/internal/handlers"
	"coinpayments-webhooks/internal/replay"
	"coinpayments-webhooks/internal/storage"
	"coinpayments-webhooks/internal/storage/sqlite"
	"coinpayments-webhooks/pkg/webhook"
)

const (
	testSecret   = "cp-webhook-secret"
	testClientID = "client-123"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

const invoicePaid = `{"event":"invoicePaid","invoice_id":"inv_1","merchant_id":"m_1","amount":"0.0015","currency":"1","status":"paid"}`

// MockPublisher records publishes through testify/mock.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Name() string { return "mock" }

func (m *MockPublisher) Publish(ctx context.Context, msg *brokers.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockPublisher) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPublisher) Close() error { return nil }

type fixture struct {
	h         *handlers.Handlers
	auth      *webhook.Authenticator
	guard     *replay.MemoryGuard
	publisher *MockPublisher
	store     *sqlite.Store
	clock     *clock.FixedClock
}

func newFixture(t *testing.T, opts handlers.Options) *fixture {
	t.Helper()

	store, err := sqlite.New(sqlite.Config{DatabasePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewFixedClock(testNow)
	if opts.Secret == nil {
		opts.Secret = []byte(testSecret)
	}

	f := &fixture{
		auth:      webhook.Default(),
		guard:     replay.NewMemoryGuard(clk),
		publisher: &MockPublisher{},
		store:     store,
		clock:     clk,
	}
	f.h = handlers.New(f.auth, opts, f.guard, f.publisher, store, clk, nil)
	return f
}

func (f *fixture) signedRequest(body string, eventID string, at time.Time) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/coinpayments", strings.NewReader(body))
	for k, v := range f.auth.Sign([]byte(testSecret), testClientID, at, []byte(body)) {
		req.Header.Set(k, v)
	}
	if eventID != "" {
		req.Header.Set(webhook.HeaderEventID, eventID)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.h.HandleWebhook(rec, req)
	return rec
}

func (f *fixture) outcomes(t *testing.T) []storage.Outcome {
	t.Helper()
	rows, err := f.store.Recent(context.Background(), 100)
	require.NoError(t, err)
	out := make([]storage.Outcome, len(rows))
	for i, r := range rows {
		out[i] = r.Outcome
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *errors.AppError {
	t.Helper()
	var resp errors.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestHandleWebhook_Accepted(t *testing.T) {
	f := newFixture(t, handlers.Options{ClientID: testClientID})

	var published *brokers.Message
	f.publisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).(*brokers.Message) }).
		Return(nil).Once()

	rec := f.serve(f.signedRequest(invoicePaid, "evt_1", testNow))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "evt_1", resp.EventID)

	require.NotNil(t, published)
	assert.Equal(t, resp.MessageID, published.MessageID)
	assert.Equal(t, "invoicePaid", published.RoutingKey)
	assert.Equal(t, []byte(invoicePaid), published.Body, "body is forwarded verbatim")
	assert.Equal(t, "client", published.Headers[brokers.HeaderEventKind])
	assert.Equal(t, "inv_1", published.Headers[brokers.HeaderSubject])
	assert.Equal(t, testClientID, published.Headers[brokers.HeaderClientID])

	rows, err := f.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, storage.OutcomeAccepted, rows[0].Outcome)
	assert.Equal(t, "evt_1", rows[0].EventID)
	assert.Equal(t, "invoicePaid", rows[0].EventType)
	assert.Len(t, rows[0].BodySHA256, 64)

	f.publisher.AssertExpectations(t)
}

func TestHandleWebhook_ReplayNotRepublished(t *testing.T) {
	f := newFixture(t, handlers.Options{})
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	first := f.serve(f.signedRequest(invoicePaid, "evt_1", testNow))
	require.Equal(t, http.StatusOK, first.Code)

	second := f.serve(f.signedRequest(invoicePaid, "evt_1", testNow))
	require.Equal(t, http.StatusOK, second.Code)

	var resp handlers.WebhookResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp.Status)

	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
	assert.ElementsMatch(t, []storage.Outcome{storage.OutcomeAccepted, storage.OutcomeDuplicate}, f.outcomes(t))
}

func TestHandleWebhook_ReplayWithoutEventID(t *testing.T) {
	f := newFixture(t, handlers.Options{})
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	require.Equal(t, http.StatusOK, f.serve(f.signedRequest(invoicePaid, "", testNow)).Code)

	again := f.signedRequest(invoicePaid, "", testNow)
	rec := f.serve(again)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate")
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestHandleWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		opts    handlers.Options
		request func(f *fixture) *http.Request
		status  int
		code    string
		outcome storage.Outcome
	}{
		{
			name: "missing signature",
			request: func(f *fixture) *http.Request {
				req := f.signedRequest(invoicePaid, "", testNow)
				req.Header.Del(webhook.HeaderSignature)
				return req
			},
			status:  http.StatusBadRequest,
			code:    "missing_field",
			outcome: storage.OutcomeMalformed,
		},
		{
			name: "signature not hex",
			request: func(f *fixture) *http.Request {
				req := f.signedRequest(invoicePaid, "", testNow)
				req.Header.Set(webhook.HeaderSignature, "not-hex!")
				return req
			},
			status:  http.StatusBadRequest,
			code:    "malformed_encoding",
			outcome: storage.OutcomeMalformed,
		},
		{
			name: "wrong signature",
			request: func(f *fixture) *http.Request {
				req := f.signedRequest(invoicePaid, "", testNow)
				req.Header.Set(webhook.HeaderSignature, strings.Repeat("ab", 64))
				return req
			},
			status:  http.StatusUnauthorized,
			code:    "signature_mismatch",
			outcome: storage.OutcomeUnauthorized,
		},
		{
			name: "tampered body",
			request: func(f *fixture) *http.Request {
				signed := f.signedRequest(invoicePaid, "", testNow)
				tampered := strings.Replace(invoicePaid, "0.0015", "1500.0", 1)
				req := httptest.NewRequest(http.MethodPost, "/webhooks/coinpayments", strings.NewReader(tampered))
				req.Header = signed.Header
				return req
			},
			status:  http.StatusUnauthorized,
			code:    "signature_mismatch",
			outcome: storage.OutcomeUnauthorized,
		},
		{
			name: "stale timestamp",
			request: func(f *fixture) *http.Request {
				return f.signedRequest(invoicePaid, "", testNow.Add(-301*time.Second))
			},
			status:  http.StatusUnauthorized,
			code:    "timestamp_stale",
			outcome: storage.OutcomeUnauthorized,
		},
		{
			name: "future timestamp",
			request: func(f *fixture) *http.Request {
				return f.signedRequest(invoicePaid, "", testNow.Add(10*time.Minute))
			},
			status:  http.StatusUnauthorized,
			code:    "timestamp_future",
			outcome: storage.OutcomeUnauthorized,
		},
		{
			name: "unexpected client",
			opts: handlers.Options{ClientID: "someone-else"},
			request: func(f *fixture) *http.Request {
				return f.signedRequest(invoicePaid, "", testNow)
			},
			status:  http.StatusUnauthorized,
			code:    "client_mismatch",
			outcome: storage.OutcomeUnauthorized,
		},
		{
			name: "invalid payload",
			request: func(f *fixture) *http.Request {
				return f.signedRequest(`{"event":"invoicePaid","invoice_id":"inv_1"}`, "", testNow)
			},
			status:  http.StatusUnprocessableEntity,
			code:    "invalid_payload",
			outcome: storage.OutcomeInvalid,
		},
		{
			name: "unknown event",
			request: func(f *fixture) *http.Request {
				return f.signedRequest(`{"event":"somethingElse"}`, "", testNow)
			},
			status:  http.StatusUnprocessableEntity,
			code:    "invalid_payload",
			outcome: storage.OutcomeInvalid,
		},
		{
			name: "oversized body",
			opts: handlers.Options{MaxBodyBytes: 16},
			request: func(f *fixture) *http.Request {
				return f.signedRequest(invoicePaid, "", testNow)
			},
			status:  http.StatusRequestEntityTooLarge,
			outcome: storage.OutcomeMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)

			rec := f.serve(tt.request(f))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			appErr := decodeError(t, rec)
			if tt.code != "" {
				assert.Equal(t, tt.code, appErr.Code)
			}
			assert.NotContains(t, rec.Body.String(), testSecret)

			assert.Equal(t, []storage.Outcome{tt.outcome}, f.outcomes(t))
			f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleWebhook_PublishFailureReleasesClaim(t *testing.T) {
	f := newFixture(t, handlers.Options{})
	f.publisher.On("Publish", mock.Anything, mock.Anything).
		Return(errors.ConnectionError("broker down", nil)).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	rec := f.serve(f.signedRequest(invoicePaid, "evt_9", testNow))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, f.guard.Len(), "claim released")

	retry := f.serve(f.signedRequest(invoicePaid, "evt_9", testNow))
	require.Equal(t, http.StatusOK, retry.Code)
	assert.Contains(t, retry.Body.String(), "accepted")

	f.publisher.AssertNumberOfCalls(t, "Publish", 2)
	assert.ElementsMatch(t, []storage.Outcome{storage.OutcomePublishFailed, storage.OutcomeAccepted}, f.outcomes(t))
}

type failingGuard struct{ replay.Guard }

func (failingGuard) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, fmt.Errorf("redis: connection refused")
}

func TestHandleWebhook_ReplayStoreDown(t *testing.T) {
	f := newFixture(t, handlers.Options{})
	h := handlers.New(f.auth, handlers.Options{Secret: []byte(testSecret)}, failingGuard{}, f.publisher, f.store, f.clock, nil)

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, f.signedRequest(invoicePaid, "evt_2", testNow))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		f := newFixture(t, handlers.Options{})
		f.publisher.On("Health", mock.Anything).Return(nil)

		rec := httptest.NewRecorder()
		f.h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "mock", body["broker"])
		assert.Equal(t, "memory", body["replay"])
		assert.Equal(t, "healthy", body["storage_status"])
	})

	t.Run("broker down degrades", func(t *testing.T) {
		f := newFixture(t, handlers.Options{})
		f.publisher.On("Health", mock.Anything).Return(fmt.Errorf("unreachable"))

		rec := httptest.NewRecorder()
		f.h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
		assert.Contains(t, rec.Body.String(), "unreachable")
	})

	t.Run("storage down fails", func(t *testing.T) {
		f := newFixture(t, handlers.Options{})
		f.publisher.On("Health", mock.Anything).Return(nil)
		require.NoError(t, f.store.Close())

		rec := httptest.NewRecorder()
		f.h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestListNotifications(t *testing.T) {
	f := newFixture(t, handlers.Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n := storage.NewNotification(storage.OutcomeAccepted, []byte(fmt.Sprint(i)), testNow.Add(time.Duration(i)*time.Second))
		n.EventID = fmt.Sprintf("evt_%d", i)
		require.NoError(t, f.store.Record(ctx, n))
	}

	rec := httptest.NewRecorder()
	f.h.ListNotifications(rec, httptest.NewRequest(http.MethodGet, "/api/notifications?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Notifications []storage.Notification `json:"notifications"`
		Count         int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "evt_2", body.Notifications[0].EventID)
	assert.Equal(t, "evt_1", body.Notifications[1].EventID)

	for _, bad := range []string{"0", "-3", "ten"} {
		rec := httptest.NewRecorder()
		f.h.ListNotifications(rec, httptest.NewRequest(http.MethodGet, "/api/notifications?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestGetStats(t *testing.T) {
	f := newFixture(t, handlers.Options{})
	ctx := context.Background()

	record := func(o storage.Outcome, at time.Time) {
		require.NoError(t, f.store.Record(ctx, storage.NewNotification(o, nil, at)))
	}
	record(storage.OutcomeAccepted, testNow.Add(-time.Hour))
	record(storage.OutcomeAccepted, testNow.Add(-2*time.Hour))
	record(storage.OutcomeUnauthorized, testNow.Add(-3*time.Hour))
	record(storage.OutcomeAccepted, testNow.Add(-48*time.Hour))

	rec := httptest.NewRecorder()
	f.h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total     int64            `json:"total"`
		ByOutcome map[string]int64 `json:"by_outcome"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&body))
	assert.Equal(t, int64(3), body.Total)
	assert.Equal(t, int64(2), body.ByOutcome["accepted"])
	assert.Equal(t, int64(1), body.ByOutcome["unauthorized"])
	assert.Equal(t, int64(0), body.ByOutcome["duplicate"])

	rec = httptest.NewRecorder()
	f.h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats?window=3d", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.Total)

	rec = httptest.NewRecorder()
	f.h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats?window=soon", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhook_Filtered(t *testing.T) {
	flt, err := filter.Compile(`type == "invoiceCompleted"`)
	require.NoError(t, err)
	f := newFixture(t, handlers.Options{Filter: flt})

	rec := f.serve(f.signedRequest(invoicePaid, "evt_f", testNow))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp handlers.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "filtered", resp.Status)
	assert.Equal(t, []storage.Outcome{storage.OutcomeFiltered}, f.outcomes(t))

	// Filtered deliveries are not claimed, so a later matching config would
	// still see the provider's retry.
	claimed, err := f.guard.Claim(context.Background(), "event:evt_f", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)

	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
