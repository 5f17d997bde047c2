package replay

import (
	"context"
	"fmt"
	"time"
)

// KeyPrefix namespaces replay claims in a shared Redis database.
const KeyPrefix = "coinpayments:replay:"

// RedisClient is the subset of internal/redis.Client the guard uses.
type RedisClient interface {
	SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Health(ctx context.Context) error
}

// RedisGuard stores claims with SET NX EX so that every receiver instance
// sharing the database sees the same deliveries.
type RedisGuard struct {
	client RedisClient
}

func NewRedisGuard(client RedisClient) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, KeyPrefix+key, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("replay claim: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Delete(ctx, KeyPrefix+key); err != nil {
		return fmt.Errorf("replay release: %w", err)
	}
	return nil
}

func (g *RedisGuard) Health(ctx context.Context) error {
	return g.client.Health(ctx)
}

func (g *RedisGuard) Name() string { return "redis" }
