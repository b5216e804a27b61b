package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := NewClient(&Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		mr := miniredis.RunT(t)

		client, err := NewClient(&Config{Address: mr.Addr(), PoolSize: 5})
		require.NoError(t, err)
		require.NotNil(t, client)
		assert.NoError(t, client.Close())
	})

	t.Run("nil config", func(t *testing.T) {
		client, err := NewClient(nil)
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "redis config is required")
	})

	t.Run("connection failure", func(t *testing.T) {
		client, err := NewClient(&Config{Address: "invalid:99999"})
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})

	t.Run("defaults pool size", func(t *testing.T) {
		mr := miniredis.RunT(t)

		config := &Config{Address: mr.Addr()}
		client, err := NewClient(config)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 10, config.PoolSize)
	})
}

func TestClient_Health(t *testing.T) {
	client, mr := setupTestRedis(t)

	assert.NoError(t, client.Health())

	mr.Close()
	assert.Error(t, client.Health())
}

func TestClient_SetGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	t.Run("string passes through", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "cred:string", "hello", time.Hour))

		got, err := client.Get(ctx, "cred:string")
		require.NoError(t, err)
		assert.Equal(t, "hello", got)
	})

	t.Run("bytes pass through", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "cred:bytes", []byte(`{"raw":true}`), time.Hour))

		got, err := client.Get(ctx, "cred:bytes")
		require.NoError(t, err)
		assert.Equal(t, `{"raw":true}`, got)
	})

	t.Run("other values are marshaled to JSON", func(t *testing.T) {
		value := map[string]interface{}{"business_id": "biz-42", "attempts": 3}
		require.NoError(t, client.Set(ctx, "cred:json", value, time.Hour))

		raw, err := client.Get(ctx, "cred:json")
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
		assert.Equal(t, "biz-42", decoded["business_id"])
		assert.Equal(t, float64(3), decoded["attempts"])
	})

	t.Run("missing key returns redis.Nil", func(t *testing.T) {
		_, err := client.Get(ctx, "cred:absent")
		assert.Equal(t, redis.Nil, err, "store layer depends on redis.Nil for miss detection")
	})

	t.Run("value expires with its TTL", func(t *testing.T) {
		require.NoError(t, client.Set(ctx, "cred:expiring", "soon gone", time.Second))

		got, err := client.Get(ctx, "cred:expiring")
		require.NoError(t, err)
		assert.Equal(t, "soon gone", got)

		mr.FastForward(2 * time.Second)

		_, err = client.Get(ctx, "cred:expiring")
		assert.Equal(t, redis.Nil, err)
	})
}

func TestClient_Delete(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "cred:doomed", "value", time.Hour))
	require.NoError(t, client.Delete(ctx, "cred:doomed"))

	_, err := client.Get(ctx, "cred:doomed")
	assert.Equal(t, redis.Nil, err)

	// Deleting a missing key is not an error
	assert.NoError(t, client.Delete(ctx, "cred:doomed"))
}

func TestClient_Exists(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	exists, err := client.Exists(ctx, "cred:maybe")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, client.Set(ctx, "cred:maybe", "value", time.Hour))

	exists, err = client.Exists(ctx, "cred:maybe")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestClient_SetUnmarshalable(t *testing.T) {
	client, _ := setupTestRedis(t)

	err := client.Set(context.Background(), "cred:bad", make(chan int), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal value")
}

func TestClient_ClosedServer(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	mr.Close()

	assert.Error(t, client.Set(ctx, "cred:key", "value", time.Hour))

	_, err := client.Get(ctx, "cred:key")
	assert.Error(t, err)
	assert.NotEqual(t, redis.Nil, err, "a dead server is not a cache miss")
}
