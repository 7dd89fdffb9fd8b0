package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/waroenk/commerce/internal/cart"
)

func setupTestDB(t *testing.T) *MongoRepository {
	t.Helper()
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))
	return repo
}

func TestGetCartNotFound(t *testing.T) {
	repo := setupTestDB(t)

	c, err := repo.GetCart(context.Background(), "user:nobody")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, c)
}

func TestUpsertAndGetCart(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	c := &cart.Cart{
		OwnerKey: "user:u1",
		Items: []cart.Item{
			{SKU: "A", SubSKU: "A-red", Quantity: 2, PriceSnapshot: 9.5, TitleSnapshot: "Widget"},
		},
	}
	require.NoError(t, repo.UpsertCart(ctx, c))

	got, err := repo.GetCart(ctx, "user:u1")
	require.NoError(t, err)
	assert.Equal(t, "user:u1", got.OwnerKey)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "A-red", got.Items[0].SubSKU)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUpsertReplacesExistingCart(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	c := &cart.Cart{
		OwnerKey: "user:u1",
		Items:    []cart.Item{{SKU: "A", SubSKU: "A", Quantity: 1}},
	}
	require.NoError(t, repo.UpsertCart(ctx, c))

	c.Items[0].Quantity = 5
	c.Items = append(c.Items, cart.Item{SKU: "B", SubSKU: "B", Quantity: 2})
	require.NoError(t, repo.UpsertCart(ctx, c))

	got, err := repo.GetCart(ctx, "user:u1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 5, got.Items[0].Quantity)
}

func TestDeleteCart(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertCart(ctx, &cart.Cart{OwnerKey: "guest:tok-1"}))
	require.NoError(t, repo.DeleteCart(ctx, "guest:tok-1"))

	_, err := repo.GetCart(ctx, "guest:tok-1")
	assert.ErrorIs(t, err, ErrCartNotFound)

	err = repo.DeleteCart(ctx, "guest:tok-1")
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestGuestCartStoresExpiry(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	expires := time.Now().Add(GuestCartTTL)
	c := &cart.Cart{OwnerKey: "guest:tok-1", ExpiresAt: &expires}
	require.NoError(t, repo.UpsertCart(ctx, c))

	got, err := repo.GetCart(ctx, "guest:tok-1")
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	assert.WithinDuration(t, expires, *got.ExpiresAt, time.Second)
}

func TestGuestTombstone(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	invalidated, err := repo.IsGuestInvalidated(ctx, "guest:tok-1")
	require.NoError(t, err)
	assert.False(t, invalidated)

	require.NoError(t, repo.InvalidateGuest(ctx, "guest:tok-1"))

	invalidated, err = repo.IsGuestInvalidated(ctx, "guest:tok-1")
	require.NoError(t, err)
	assert.True(t, invalidated)

	// Re-invalidating is a no-op, not a duplicate-key error.
	require.NoError(t, repo.InvalidateGuest(ctx, "guest:tok-1"))
}
