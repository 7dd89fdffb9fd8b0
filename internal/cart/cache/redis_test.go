package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waroenk/commerce/internal/cart"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

func TestGetReturnsCachedCart(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	c := &cart.Cart{
		OwnerKey: "user:u1",
		Items: []cart.Item{
			{SKU: "A", SubSKU: "A", Quantity: 2, PriceSnapshot: 10},
		},
	}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	mr.Set(cacheKey("user:u1"), string(data))

	got, err := cache.Get(ctx, "user:u1")
	require.NoError(t, err)
	assert.Equal(t, c.OwnerKey, got.OwnerKey)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestGetMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, err := cache.Get(context.Background(), "user:nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSetAppliesTTLWithJitter(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	c := &cart.Cart{OwnerKey: "user:u1"}
	require.NoError(t, cache.Set(ctx, "user:u1", c))

	ttl := mr.TTL(cacheKey("user:u1"))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 20*time.Minute)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	c := &cart.Cart{
		OwnerKey: "guest:tok-1",
		Items:    []cart.Item{{SKU: "B", SubSKU: "B-red", Quantity: 1}},
	}
	require.NoError(t, cache.Set(ctx, "guest:tok-1", c))

	got, err := cache.Get(ctx, "guest:tok-1")
	require.NoError(t, err)
	assert.Equal(t, "B-red", got.Items[0].SubSKU)
}

func TestDeleteRemovesEntry(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user:u1", &cart.Cart{OwnerKey: "user:u1"}))
	require.NoError(t, cache.Delete(ctx, "user:u1"))

	_, err := cache.Get(ctx, "user:u1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Deleting a missing key is a no-op.
	require.NoError(t, cache.Delete(ctx, "user:u1"))
}
