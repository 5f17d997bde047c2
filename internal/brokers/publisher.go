// Package brokers forwards verified CoinPayments notifications to a message
// broker. Each subpackage adapts one broker; this package holds the shared
// message shape and the wrappers every publisher can be combined with.
package brokers

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Publisher delivers messages to one destination. Implementations are safe
// for concurrent use.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, message *Message) error
	Health(ctx context.Context) error
	Close() error
}

// Header names attached to every published notification.
const (
	HeaderEventType = "event_type"
	HeaderEventKind = "event_kind"
	HeaderEventID   = "event_id"
	HeaderClientID  = "client_id"
	HeaderSubject   = "subject"
)

// Message is one notification ready for publishing. Body is the raw webhook
// payload exactly as received and verified.
type Message struct {
	MessageID  string
	RoutingKey string
	Headers    map[string]string
	Body       []byte
	Timestamp  time.Time
}

// NewMessage builds a message with a fresh UUID. routingKey is the event
// type, for example "invoicePaid".
func NewMessage(routingKey string, body []byte, headers map[string]string, at time.Time) *Message {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return &Message{
		MessageID:  uuid.NewString(),
		RoutingKey: routingKey,
		Headers:    copied,
		Body:       body,
		Timestamp:  at.UTC(),
	}
}
