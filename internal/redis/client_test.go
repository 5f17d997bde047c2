package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.Error(t, err)
	})

	t.Run("defaults pool size", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		assert.Equal(t, 10, client.config.PoolSize)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		_, err = NewClient(&Config{Address: addr})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})
}

func TestHealth(t *testing.T) {
	client, mr := setupTestRedis(t)
	assert.NoError(t, client.Health(context.Background()))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}

func TestSetNX(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "claim:evt_1", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "claim:evt_1", "2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	v, err := mr.Get("claim:evt_1")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("claim:evt_1"))
}

func TestDelete(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := client.SetNX(ctx, "k", "v", 0)
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))

	require.NoError(t, client.Delete(ctx, "absent"))
}

func TestAddToStream(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	id, err := client.AddToStream(ctx, "events", 0, map[string]interface{}{"body": `{"a":1}`})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = client.AddToStream(ctx, "events", 100, map[string]interface{}{"body": `{"a":2}`})
	require.NoError(t, err)

	entries, err := mr.Stream("events")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, []string{"body", `{"a":1}`}, entries[0].Values)
}
