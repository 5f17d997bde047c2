// Package circuitbreaker protects calls to external services with Sony's
// gobreaker. After MaxFailures consecutive failures the breaker opens and
// calls fail fast until Timeout has passed.
package circuitbreaker

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/common/logging"
)

// Config holds the configuration for a circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures uint32
	// Timeout is how long the breaker stays open before trying again
	Timeout time.Duration
	// MaxConcurrentRequests is the number of trial requests allowed while half-open
	MaxConcurrentRequests uint32
}

// DefaultConfig suits a message broker: tolerant of short blips, quick to
// retry.
func DefaultConfig() Config {
	return Config{
		MaxFailures:           5,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

func (c Config) Validate() error {
	if c.MaxFailures == 0 {
		return fmt.Errorf("MaxFailures must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentRequests == 0 {
		return fmt.Errorf("MaxConcurrentRequests must be positive")
	}
	return nil
}

// Breaker wraps a gobreaker.CircuitBreaker.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// New creates a breaker. An invalid config is replaced by DefaultConfig and
// reported through logger.
func New(name string, config Config, logger logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := config.Validate(); err != nil {
		logger.Warn("Invalid circuit breaker config, using defaults",
			logging.String("breaker", name),
			logging.String("error", err.Error()),
		)
		config = DefaultConfig()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxConcurrentRequests,
		Interval:    time.Minute,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
		IsSuccessful: isSuccessful,
	}

	return &Breaker{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// isSuccessful keeps caller mistakes and cancelled requests from counting
// against the downstream service.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if stderrors.Is(err, context.Canceled) {
		return true
	}
	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeMalformed:
		return true
	}
	return false
}

// Execute runs fn unless the breaker is open. Rejections are returned as
// connection errors so callers answer 503.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	if stderrors.Is(err, gobreaker.ErrOpenState) {
		return errors.ConnectionError(fmt.Sprintf("circuit breaker '%s' is open", b.name), err)
	}
	if stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.ConnectionError(fmt.Sprintf("circuit breaker '%s' has too many requests", b.name), err)
	}
	return err
}

func (b *Breaker) Name() string { return b.name }

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.breaker.State().String()
}

func (b *Breaker) IsOpen() bool {
	return b.breaker.State() == gobreaker.StateOpen
}

func (b *Breaker) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
