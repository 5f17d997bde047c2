// Package kafka publishes notifications with confluent-kafka-go. Messages
// are keyed by event id so redeliveries of one notification land on the same
// partition.
package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/common/errors"
)

// Producer abstracts *kafka.Producer for testing.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	Flush(timeoutMs int) int
	Close()
}

type Config struct {
	Brokers          []string
	Topic            string
	ClientID         string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	Timeout          time.Duration
}

// Validate checks the config and fills defaults.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.ConfigError("Kafka brokers are required")
	}
	for _, broker := range c.Brokers {
		if broker == "" {
			return errors.ConfigError("empty Kafka broker address")
		}
	}
	if c.Topic == "" {
		return errors.ConfigError("Kafka topic is required")
	}

	if c.ClientID == "" {
		c.ClientID = "coinpayments-webhookd"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.SecurityProtocol == "" {
		c.SecurityProtocol = "PLAINTEXT"
	}

	switch c.SecurityProtocol {
	case "PLAINTEXT", "SSL", "SASL_PLAINTEXT", "SASL_SSL":
	default:
		return errors.ConfigError(fmt.Sprintf("invalid security protocol: %s", c.SecurityProtocol))
	}

	if strings.HasPrefix(c.SecurityProtocol, "SASL_") {
		if c.SASLMechanism == "" {
			c.SASLMechanism = "PLAIN"
		}
		switch c.SASLMechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return errors.ConfigError(fmt.Sprintf("invalid SASL mechanism: %s", c.SASLMechanism))
		}
		if c.SASLUsername == "" || c.SASLPassword == "" {
			return errors.ConfigError("SASL username and password are required")
		}
	}
	return nil
}

// ConfigMap renders the librdkafka producer settings.
func (c *Config) ConfigMap() *kafka.ConfigMap {
	m := kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.Brokers, ","),
		"client.id":          c.ClientID,
		"acks":               "all",
		"enable.idempotence": true,
	}
	if c.SecurityProtocol != "PLAINTEXT" {
		m["security.protocol"] = c.SecurityProtocol
	}
	if strings.HasPrefix(c.SecurityProtocol, "SASL_") {
		m["sasl.mechanism"] = c.SASLMechanism
		m["sasl.username"] = c.SASLUsername
		m["sasl.password"] = c.SASLPassword
	}
	return &m
}

type Publisher struct {
	config   Config
	producer Producer
}

// NewPublisher creates a librdkafka producer from config.
func NewPublisher(config Config) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	producer, err := kafka.NewProducer(config.ConfigMap())
	if err != nil {
		return nil, errors.ConnectionError("failed to create Kafka producer", err)
	}
	return &Publisher{config: config, producer: producer}, nil
}

// NewPublisherWithProducer uses an existing producer.
func NewPublisherWithProducer(config Config, producer Producer) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if producer == nil {
		return nil, errors.ConfigError("Kafka producer is required")
	}
	return &Publisher{config: config, producer: producer}, nil
}

func (p *Publisher) Name() string { return "kafka" }

// Publish waits for the delivery report or ctx.
func (p *Publisher) Publish(ctx context.Context, message *brokers.Message) error {
	topic := p.config.Topic

	headers := make([]kafka.Header, 0, len(message.Headers)+2)
	for key, value := range message.Headers {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	headers = append(headers,
		kafka.Header{Key: "message_id", Value: []byte(message.MessageID)},
		kafka.Header{Key: "routing_key", Value: []byte(message.RoutingKey)},
	)

	key := message.Headers[brokers.HeaderEventID]
	if key == "" {
		key = message.MessageID
	}

	kafkaMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          message.Body,
		Timestamp:      message.Timestamp,
		Headers:        headers,
	}

	// Buffered so a late report after ctx expiry does not block librdkafka.
	deliveryChan := make(chan kafka.Event, 1)
	if err := p.producer.Produce(kafkaMsg, deliveryChan); err != nil {
		return errors.ConnectionError("failed to produce Kafka message", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return errors.ConnectionError(fmt.Sprintf("unexpected Kafka event: %v", e), nil)
		}
		if m.TopicPartition.Error != nil {
			return errors.ConnectionError("Kafka delivery failed", m.TopicPartition.Error)
		}
		return nil
	}
}

func (p *Publisher) Health(context.Context) error {
	metadata, err := p.producer.GetMetadata(nil, false, int(p.config.Timeout.Milliseconds()))
	if err != nil {
		return errors.ConnectionError("failed to get Kafka metadata", err)
	}
	if len(metadata.Brokers) == 0 {
		return errors.ConnectionError("no Kafka brokers available", nil)
	}
	return nil
}

// Close flushes outstanding messages for up to the configured timeout.
func (p *Publisher) Close() error {
	remaining := p.producer.Flush(int(p.config.Timeout.Milliseconds()))
	p.producer.Close()
	if remaining > 0 {
		return fmt.Errorf("%d Kafka messages not delivered before close", remaining)
	}
	return nil
}

var _ brokers.Publisher = (*Publisher)(nil)
var _ Producer = (*kafka.Producer)(nil)
