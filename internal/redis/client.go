package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps the go-redis client with the handful of operations the
// receiver needs: claim keys for replay protection, stream appends for the
// event broker and the raw client for distributed locks.
type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// NewClient connects and pings the server, failing after five seconds.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Raw exposes the underlying client for libraries that take one directly.
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

// SetNX stores value under key only if the key is absent. It reports
// whether this call created the key.
func (c *Client) SetNX(ctx context.Context, key, value string, expiration time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return ok, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// AddToStream appends values to stream and returns the entry id. A positive
// maxLen trims the stream approximately to that length.
func (c *Client) AddToStream(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}

	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add to stream %s: %w", stream, err)
	}
	return id, nil
}
