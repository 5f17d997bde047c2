// Package redis publishes notifications to a Redis stream with XADD.
package redis

import (
	"context"
	"fmt"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/common/errors"
)

// StreamClient is the subset of internal/redis.Client the publisher uses.
type StreamClient interface {
	AddToStream(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error)
	Health(ctx context.Context) error
}

type Config struct {
	Stream string `json:"stream"`
	// StreamMaxLen trims the stream approximately; zero keeps every entry.
	StreamMaxLen int64 `json:"stream_max_len"`
}

func (c *Config) Validate() error {
	if c.Stream == "" {
		return errors.ConfigError("redis stream name is required")
	}
	if c.StreamMaxLen < 0 {
		return errors.ConfigError("stream max length must not be negative")
	}
	return nil
}

type Publisher struct {
	client StreamClient
	config Config
}

func NewPublisher(client StreamClient, config Config) (*Publisher, error) {
	if client == nil {
		return nil, errors.ConfigError("redis client is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Publisher{client: client, config: config}, nil
}

func (p *Publisher) Name() string { return "redis" }

// Publish appends one entry. Headers are stored as header_<name> fields next
// to body, timestamp, message_id and routing_key.
func (p *Publisher) Publish(ctx context.Context, message *brokers.Message) error {
	fields := map[string]interface{}{
		"body":       string(message.Body),
		"timestamp":  message.Timestamp.UnixNano(),
		"message_id": message.MessageID,
	}
	if message.RoutingKey != "" {
		fields["routing_key"] = message.RoutingKey
	}
	for key, value := range message.Headers {
		fields["header_"+key] = value
	}

	if _, err := p.client.AddToStream(ctx, p.config.Stream, p.config.StreamMaxLen, fields); err != nil {
		return errors.ConnectionError(fmt.Sprintf("failed to publish to stream %s", p.config.Stream), err)
	}
	return nil
}

func (p *Publisher) Health(ctx context.Context) error {
	if err := p.client.Health(ctx); err != nil {
		return errors.ConnectionError("redis unreachable", err)
	}
	return nil
}

// Close is a no-op; the Redis client is shared and closed by its owner.
func (p *Publisher) Close() error { return nil }

var _ brokers.Publisher = (*Publisher)(nil)
