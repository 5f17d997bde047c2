// Package storage defines the notification audit log. Every webhook the
// receiver sees is recorded with its outcome; bodies and secrets are never
// stored, only a SHA-256 of the raw body.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"coinpayments-webhooks/internal/common/utils"
)

// Outcome is the final disposition of one delivery.
type Outcome string

const (
	OutcomeAccepted      Outcome = "accepted"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeFiltered      Outcome = "filtered"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeUnauthorized  Outcome = "unauthorized"
	OutcomeInvalid       Outcome = "invalid_payload"
	OutcomePublishFailed Outcome = "publish_failed"
)

// Outcomes lists every outcome in display order.
var Outcomes = []Outcome{
	OutcomeAccepted,
	OutcomeDuplicate,
	OutcomeFiltered,
	OutcomeMalformed,
	OutcomeUnauthorized,
	OutcomeInvalid,
	OutcomePublishFailed,
}

// Notification is one audit row.
type Notification struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id,omitempty"`
	EventType  string    `json:"event_type,omitempty"`
	EventKind  string    `json:"event_kind,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	BodySHA256 string    `json:"body_sha256"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewNotification fills the id and body digest.
func NewNotification(outcome Outcome, body []byte, receivedAt time.Time) *Notification {
	sum := sha256.Sum256(body)
	return &Notification{
		ID:         utils.GenerateRecordID(),
		Outcome:    outcome,
		BodySHA256: hex.EncodeToString(sum[:]),
		ReceivedAt: receivedAt.UTC(),
	}
}

// Store is implemented by the sqlite and postgres backends. Implementations
// are safe for concurrent use.
type Store interface {
	Record(ctx context.Context, n *Notification) error
	// Recent returns the newest rows first.
	Recent(ctx context.Context, limit int) ([]*Notification, error)
	// CountByOutcome counts rows received at or after since. Every outcome
	// is present in the result, zero when absent.
	CountByOutcome(ctx context.Context, since time.Time) (map[Outcome]int64, error)
	// PurgeBefore deletes rows received strictly before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Health(ctx context.Context) error
	Close() error
}

// EmptyCounts returns a count map with every outcome set to zero.
func EmptyCounts() map[Outcome]int64 {
	counts := make(map[Outcome]int64, len(Outcomes))
	for _, o := range Outcomes {
		counts[o] = 0
	}
	return counts
}
