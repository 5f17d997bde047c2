// Package gcp publishes notifications to a Google Cloud Pub/Sub topic.
package gcp

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/common/logging"
)

type Config struct {
	ProjectID       string
	TopicID         string
	CredentialsFile string
}

func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return errors.ConfigError("GCP project id is required")
	}
	if c.TopicID == "" {
		return errors.ConfigError("Pub/Sub topic id is required")
	}
	return nil
}

type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger logging.Logger
}

// NewPublisher creates a Pub/Sub client. Without a credentials file the
// client falls back to Application Default Credentials.
func NewPublisher(ctx context.Context, config Config, logger logging.Logger, opts ...option.ClientOption) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, config.ProjectID, opts...)
	if err != nil {
		return nil, errors.ConnectionError("failed to create Pub/Sub client", err)
	}

	p, err := NewPublisherWithClient(ctx, client, config, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

// NewPublisherWithClient requires the topic to exist already.
func NewPublisherWithClient(ctx context.Context, client *pubsub.Client, config Config, logger logging.Logger) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.ConfigError("Pub/Sub client is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	topic := client.Topic(config.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, errors.ConnectionError("failed to check topic existence", err)
	}
	if !exists {
		return nil, errors.ConfigError(fmt.Sprintf("topic %s does not exist", config.TopicID))
	}

	return &Publisher{
		client: client,
		topic:  topic,
		logger: logger.WithFields(logging.String("component", "pubsub_publisher"), logging.String("topic_id", config.TopicID)),
	}, nil
}

func (p *Publisher) Name() string { return "gcp" }

// Publish blocks until the server acknowledges the message or ctx ends.
func (p *Publisher) Publish(ctx context.Context, message *brokers.Message) error {
	attrs := make(map[string]string, len(message.Headers)+3)
	attrs["MessageID"] = message.MessageID
	attrs["Timestamp"] = strconv.FormatInt(message.Timestamp.UnixNano(), 10)
	if message.RoutingKey != "" {
		attrs["RoutingKey"] = message.RoutingKey
	}
	for key, value := range message.Headers {
		attrs["Header_"+key] = value
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: message.Body, Attributes: attrs})
	serverID, err := result.Get(ctx)
	if err != nil {
		return errors.ConnectionError("failed to publish message to Pub/Sub", err)
	}

	p.logger.Debug("Message published to Pub/Sub", logging.String("pubsub_message_id", serverID))
	return nil
}

func (p *Publisher) Health(ctx context.Context) error {
	exists, err := p.topic.Exists(ctx)
	if err != nil {
		return errors.ConnectionError("failed to check topic existence", err)
	}
	if !exists {
		return errors.ConnectionError("Pub/Sub topic no longer exists", nil)
	}
	return nil
}

// Close flushes pending publishes before closing the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

var _ brokers.Publisher = (*Publisher)(nil)
