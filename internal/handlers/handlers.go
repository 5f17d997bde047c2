// Package handlers serves the receiver's HTTP endpoints: the CoinPayments
// webhook itself, health, and the read-only notification API.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/clock"
	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/filter"
	"coinpayments-webhooks/internal/replay"
	"coinpayments-webhooks/internal/storage"
	"coinpayments-webhooks/pkg/webhook"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Options configures the webhook endpoint.
type Options struct {
	// Secret is the shared HMAC secret. It is only ever passed to the
	// authenticator.
	Secret []byte
	// ClientID, when set, must match the client id header.
	ClientID string
	// MaxBodyBytes bounds the request body.
	MaxBodyBytes int64
	// ReplayTTL is how long an accepted delivery is remembered.
	ReplayTTL time.Duration
	// Filter selects which authentic events are published. Nil publishes
	// every event.
	Filter *filter.Filter
}

type Handlers struct {
	auth      *webhook.Authenticator
	options   Options
	replay    replay.Guard
	publisher brokers.Publisher
	storage   storage.Store
	clock     clock.Clock
	logger    logging.Logger
}

func New(auth *webhook.Authenticator, options Options, guard replay.Guard, publisher brokers.Publisher, store storage.Store, clk clock.Clock, logger logging.Logger) *Handlers {
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = 1 << 20
	}
	if options.ReplayTTL <= 0 {
		options.ReplayTTL = 24 * time.Hour
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Handlers{
		auth:      auth,
		options:   options,
		replay:    guard,
		publisher: publisher,
		storage:   store,
		clock:     clk,
		logger:    logger.WithFields(logging.String("component", "handlers")),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	errors.WriteHTTP(w, err)
}
