// Package rabbitmq publishes notifications to a durable topic exchange. The
// routing key is the event type, so consumers can bind to "invoice*" or
// a single event.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"coinpayments-webhooks/internal/brokers"
	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/common/logging"
)

// Channel abstracts the AMQP channel for testing.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection abstracts the AMQP connection for testing.
type Connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

// Dialer opens a connection to url.
type Dialer func(url string) (Connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the Dialer backed by streadway/amqp.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

type Config struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.ConfigError("rabbitmq url is required")
	}
	if c.Exchange == "" {
		return errors.ConfigError("rabbitmq exchange is required")
	}
	return nil
}

// Publisher holds one connection and one channel. AMQP channels are not safe
// for concurrent publishing, so Publish is serialised. A failed publish drops
// the connection and the next call dials again.
type Publisher struct {
	mu      sync.Mutex
	config  Config
	dial    Dialer
	conn    Connection
	channel Channel
	logger  logging.Logger
}

// NewPublisher dials immediately so that misconfiguration fails at startup.
// A nil dial uses DialAMQP.
func NewPublisher(config Config, dial Dialer, logger logging.Logger) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if dial == nil {
		dial = DialAMQP
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	p := &Publisher{
		config: config,
		dial:   dial,
		logger: logger.WithFields(logging.String("component", "rabbitmq_publisher")),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect requires p.mu.
func (p *Publisher) connect() error {
	conn, err := p.dial(p.config.URL)
	if err != nil {
		return errors.ConnectionError("failed to connect to RabbitMQ", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.ConnectionError("failed to open RabbitMQ channel", err)
	}

	if err := ch.ExchangeDeclare(p.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return errors.ConnectionError(fmt.Sprintf("failed to declare exchange %s", p.config.Exchange), err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

// disconnect requires p.mu.
func (p *Publisher) disconnect() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) Name() string { return "rabbitmq" }

func (p *Publisher) Publish(ctx context.Context, message *brokers.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.conn == nil || p.conn.IsClosed() {
		p.disconnect()
		if err := p.connect(); err != nil {
			return err
		}
	}

	headers := amqp.Table{}
	for k, v := range message.Headers {
		headers[k] = v
	}

	err := p.channel.Publish(p.config.Exchange, message.RoutingKey, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    message.MessageID,
		Timestamp:    message.Timestamp,
		Type:         message.RoutingKey,
		Body:         message.Body,
	})
	if err != nil {
		p.logger.Warn("Publish failed, dropping connection", logging.String("error", err.Error()))
		p.disconnect()
		return errors.ConnectionError("failed to publish to RabbitMQ", err)
	}
	return nil
}

func (p *Publisher) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		return errors.ConnectionError("rabbitmq connection is closed", nil)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnect()
	return nil
}

var _ brokers.Publisher = (*Publisher)(nil)
