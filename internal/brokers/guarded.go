package brokers

import (
	"context"
	"fmt"

	"coinpayments-webhooks/internal/circuitbreaker"
	"coinpayments-webhooks/internal/common/errors"
)

// Guarded routes every Publish through a circuit breaker so a broken broker
// is not hammered while the provider keeps retrying.
type Guarded struct {
	Publisher
	breaker *circuitbreaker.Breaker
}

// WithBreaker wraps p. Publish failures are reported as connection errors.
func WithBreaker(p Publisher, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{Publisher: p, breaker: breaker}
}

func (g *Guarded) Publish(ctx context.Context, message *Message) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := g.Publisher.Publish(ctx, message); err != nil {
			if errors.GetType(err) == errors.ErrTypeInternal {
				return errors.ConnectionError(fmt.Sprintf("%s publish failed", g.Publisher.Name()), err)
			}
			return err
		}
		return nil
	})
}

// Health fails fast while the breaker is open.
func (g *Guarded) Health(ctx context.Context) error {
	if g.breaker.IsOpen() {
		return errors.ConnectionError(fmt.Sprintf("circuit breaker '%s' is open", g.breaker.Name()), nil)
	}
	return g.Publisher.Health(ctx)
}

// BreakerState exposes the breaker state for health output.
func (g *Guarded) BreakerState() string {
	return g.breaker.State()
}
