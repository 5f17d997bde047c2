// Package replay remembers which webhook deliveries have already been
// accepted so a re-sent notification is acknowledged without being
// processed twice.
//
// A delivery is claimed before it is published. If publishing fails the
// claim is released so that the provider's retry is processed normally.
package replay

import (
	"context"
	"time"
)

// Guard records delivery keys for a bounded time.
type Guard interface {
	// Claim records key for ttl. It reports false when the key is already
	// held, meaning the delivery is a replay.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets key. Releasing an unknown key is not an error.
	Release(ctx context.Context, key string) error

	Health(ctx context.Context) error

	// Name identifies the backend in health output and logs.
	Name() string
}
