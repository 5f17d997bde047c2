package handlers

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/common/logging"
	"coinpayments-webhooks/internal/storage"
	"coinpayments-webhooks/pkg/webhook"
)

const recordTimeout = 5 * time.Second

// WebhookResponse is the body of a 200 answer. The provider only looks at
// the status code.
type WebhookResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// HandleWebhook authenticates and forwards a CoinPayments notification.
// @Summary Receive a CoinPayments webhook
// @Description Verifies the HMAC signature and timestamp of a notification, drops replays, validates the payload and publishes it to the configured broker
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-CoinPayments-Signature header string true "HMAC of the signed message"
// @Param X-CoinPayments-Timestamp header string true "Signing time"
// @Param X-CoinPayments-Client header string false "Merchant client id"
// @Param X-CoinPayments-Event-Id header string false "Notification id"
// @Param payload body object true "Notification body"
// @Success 200 {object} WebhookResponse "Accepted, duplicate or filtered"
// @Failure 400 {object} errors.Response "Missing or malformed headers"
// @Failure 401 {object} errors.Response "Not authentic"
// @Failure 413 {object} errors.Response "Body too large"
// @Failure 422 {object} errors.Response "Invalid payload"
// @Failure 503 {object} errors.Response "Broker unavailable"
// @Router /webhooks/coinpayments [post]
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.WithContext(ctx)
	receivedAt := h.clock.Now()

	// The body is read once and the same bytes are verified, decoded and
	// published.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.options.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.record(ctx, h.notification(storage.OutcomeMalformed, body, receivedAt, webhook.Headers{}, nil, "payload_too_large"))
			writeError(w, errors.PayloadTooLargeError(h.options.MaxBodyBytes))
			return
		}
		writeError(w, errors.MalformedError("failed to read request body", err))
		return
	}

	headers, err := h.auth.ParseHTTPHeaders(r.Header)
	if err != nil {
		code := "malformed_request"
		var perr *webhook.ParseError
		if stderrors.As(err, &perr) {
			code = perr.Kind.String()
		}
		log.Warn("Rejected webhook with invalid headers", logging.String("code", code), logging.String("error", err.Error()))
		h.record(ctx, h.notification(storage.OutcomeMalformed, body, receivedAt, webhook.Headers{}, nil, code))
		writeError(w, errors.MalformedError(err.Error(), err).WithCode(code))
		return
	}

	log = log.WithFields(
		logging.String("event_id", headers.EventID),
		logging.String("client_id", headers.ClientID),
		logging.Redacted("signature", hex.EncodeToString(headers.Signature), 12),
	)

	if h.options.ClientID != "" && headers.ClientID != h.options.ClientID {
		log.Warn("Rejected webhook for unexpected client")
		h.record(ctx, h.notification(storage.OutcomeUnauthorized, body, receivedAt, headers, nil, "client_mismatch"))
		writeError(w, errors.AuthError("webhook not authentic").WithCode("client_mismatch"))
		return
	}

	res := h.auth.Authenticate(h.options.Secret, headers, body, receivedAt)
	if !res.Authentic {
		log.Warn("Rejected unauthentic webhook",
			logging.String("reason", string(res.Reason)),
			logging.Int64("timestamp", headers.Timestamp),
		)
		h.record(ctx, h.notification(storage.OutcomeUnauthorized, body, receivedAt, headers, nil, string(res.Reason)))
		writeError(w, errors.AuthError("webhook not authentic").WithCode(string(res.Reason)))
		return
	}

	event, err := webhook.DecodeEvent(body)
	if err != nil {
		log.Warn("Rejected authentic webhook with invalid payload", logging.String("error", err.Error()))
		h.record(ctx, h.notification(storage.OutcomeInvalid, body, receivedAt, headers, nil, err.Error()))
		writeError(w, errors.ValidationError(err.Error()).WithCode("invalid_payload"))
		return
	}

	publish, err := h.options.Filter.Match(event, headers.ClientID)
	if err != nil {
		log.Error("Publish filter failed, forwarding event", err, logging.String("filter", h.options.Filter.String()))
		publish = true
	}
	if !publish {
		log.Info("Webhook filtered", logging.String("event_type", event.Type))
		h.record(ctx, h.notification(storage.OutcomeFiltered, body, receivedAt, headers, event, ""))
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "filtered", EventID: headers.EventID})
		return
	}

	key := replayKey(headers)
	claimed, err := h.replay.Claim(ctx, key, h.options.ReplayTTL)
	if err != nil {
		log.Error("Replay store unavailable", err)
		h.record(ctx, h.notification(storage.OutcomePublishFailed, body, receivedAt, headers, event, "replay_store_unavailable"))
		writeError(w, errors.ConnectionError("replay store unavailable", err))
		return
	}
	if !claimed {
		log.Info("Duplicate webhook acknowledged", logging.String("event_type", event.Type))
		h.record(ctx, h.notification(storage.OutcomeDuplicate, body, receivedAt, headers, event, ""))
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "duplicate", EventID: headers.EventID})
		return
	}

	msg := brokers.NewMessage(event.Type, body, map[string]string{
		brokers.HeaderEventType: event.Type,
		brokers.HeaderEventKind: string(event.Kind),
		brokers.HeaderEventID:   headers.EventID,
		brokers.HeaderClientID:  headers.ClientID,
		brokers.HeaderSubject:   event.Subject(),
	}, receivedAt)

	if err := h.publisher.Publish(ctx, msg); err != nil {
		// Let the provider's retry through.
		if rerr := h.replay.Release(context.WithoutCancel(ctx), key); rerr != nil {
			log.Error("Failed to release replay claim", rerr)
		}
		log.Error("Failed to publish webhook", err, logging.String("broker", h.publisher.Name()))
		h.record(ctx, h.notification(storage.OutcomePublishFailed, body, receivedAt, headers, event, err.Error()))
		writeError(w, errors.ConnectionError("failed to forward notification", err))
		return
	}

	log.Info("Webhook accepted",
		logging.String("event_type", event.Type),
		logging.String("subject", event.Subject()),
		logging.String("message_id", msg.MessageID),
	)
	h.record(ctx, h.notification(storage.OutcomeAccepted, body, receivedAt, headers, event, ""))
	writeJSON(w, http.StatusOK, WebhookResponse{
		Status:    "accepted",
		EventID:   headers.EventID,
		MessageID: msg.MessageID,
	})
}

// replayKey prefers the provider's event id. Without one the signature
// identifies the delivery, since it covers the timestamp and body.
func replayKey(h webhook.Headers) string {
	if h.EventID != "" {
		return "event:" + h.EventID
	}
	return "sig:" + hex.EncodeToString(h.Signature)
}

func (h *Handlers) notification(outcome storage.Outcome, body []byte, at time.Time, headers webhook.Headers, event *webhook.Event, reason string) *storage.Notification {
	n := storage.NewNotification(outcome, body, at)
	n.EventID = headers.EventID
	n.ClientID = headers.ClientID
	n.Reason = reason
	if event != nil {
		n.EventType = event.Type
		n.EventKind = string(event.Kind)
	}
	return n
}

// record writes the audit row. Failures are logged and never change the
// answer given to the provider.
func (h *Handlers) record(ctx context.Context, n *storage.Notification) {
	if h.storage == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := h.storage.Record(ctx, n); err != nil {
		h.logger.WithContext(ctx).Error("Failed to record notification", err,
			logging.String("outcome", string(n.Outcome)),
		)
	}
}

// HealthCheck returns the health status of the application
// @Summary Health check
// @Description Returns the health status of the receiver and its dependencies
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Health status"
// @Failure 503 {object} map[string]interface{} "Storage unavailable"
// @Router /health [get]
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Checks run concurrently; each reports through its own variable.
	var brokerErr, replayErr, storageErr error
	g, gctx := errgroup.WithContext(ctx)
	if h.publisher != nil {
		g.Go(func() error { brokerErr = h.publisher.Health(gctx); return nil })
	}
	if h.replay != nil {
		g.Go(func() error { replayErr = h.replay.Health(gctx); return nil })
	}
	if h.storage != nil {
		g.Go(func() error { storageErr = h.storage.Health(gctx); return nil })
	}
	_ = g.Wait()

	status := map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.clock.Now().UTC(),
		"version":   Version,
	}
	code := http.StatusOK

	if h.publisher != nil {
		status["broker"] = h.publisher.Name()
		if brokerErr != nil {
			status["broker_status"] = "unhealthy"
			status["broker_error"] = brokerErr.Error()
			status["status"] = "degraded"
		} else {
			status["broker_status"] = "healthy"
		}
		if b, ok := h.publisher.(interface{ BreakerState() string }); ok {
			status["broker_breaker"] = b.BreakerState()
		}
	} else {
		status["broker_status"] = "not_configured"
	}

	if h.replay != nil {
		status["replay"] = h.replay.Name()
		if replayErr != nil {
			status["replay_status"] = "unhealthy"
			status["replay_error"] = replayErr.Error()
			status["status"] = "degraded"
		} else {
			status["replay_status"] = "healthy"
		}
	}

	if h.storage != nil {
		if storageErr != nil {
			status["storage_status"] = "unhealthy"
			status["storage_error"] = storageErr.Error()
			status["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		} else {
			status["storage_status"] = "healthy"
		}
	} else {
		status["storage_status"] = "not_configured"
	}

	writeJSON(w, code, status)
}
