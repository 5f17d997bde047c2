package brokers

import (
	"context"

	"coinpayments-webhooks/internal/common/logging"
)

// LogPublisher only logs what would have been published. It backs
// BROKER_TYPE=none.
type LogPublisher struct {
	logger logging.Logger
}

func NewLogPublisher(logger logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LogPublisher{logger: logger.WithFields(logging.String("component", "log_publisher"))}
}

func (p *LogPublisher) Name() string { return "none" }

func (p *LogPublisher) Publish(_ context.Context, message *Message) error {
	p.logger.Info("Notification accepted",
		logging.String("message_id", message.MessageID),
		logging.String("routing_key", message.RoutingKey),
		logging.String(HeaderEventID, message.Headers[HeaderEventID]),
		logging.Int("body_bytes", len(message.Body)),
	)
	return nil
}

func (p *LogPublisher) Health(context.Context) error { return nil }

func (p *LogPublisher) Close() error { return nil }
