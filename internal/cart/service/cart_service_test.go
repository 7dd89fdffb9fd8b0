package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waroenk/commerce/internal/cart"
	"github.com/waroenk/commerce/internal/cart/cache"
	"github.com/waroenk/commerce/internal/cart/repository"
	"github.com/waroenk/commerce/internal/identity"
)

// noopCache always misses, so tests exercise the repository path.
type noopCache struct{}

func (noopCache) Get(context.Context, string) (*cart.Cart, error) { return nil, cache.ErrCacheMiss }
func (noopCache) Set(context.Context, string, *cart.Cart) error   { return nil }
func (noopCache) Delete(context.Context, string) error            { return nil }

func newTestService(t *testing.T) (*CartService, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	return NewCartService(repo, noopCache{}), repo
}

func TestGetReturnsEmptyCartForUnknownIdentity(t *testing.T) {
	svc, _ := newTestService(t)

	c, err := svc.Get(context.Background(), identity.User("u1"))
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, "user:u1", c.OwnerKey)
}

func TestAddItemAccumulatesQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	id := identity.User("u1")
	ctx := context.Background()

	_, warning, err := svc.AddItem(ctx, id, AddItemInput{SKU: "A", Quantity: 2, PriceSnapshot: 10})
	require.NoError(t, err)
	assert.False(t, warning)

	c, warning, err := svc.AddItem(ctx, id, AddItemInput{SKU: "A", Quantity: 3})
	require.NoError(t, err)
	assert.False(t, warning)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, 10.0, c.Items[0].PriceSnapshot)
}

func TestAddItemStockWarning(t *testing.T) {
	svc, _ := newTestService(t)
	id := identity.User("u1")
	ctx := context.Background()

	_, warning, err := svc.AddItem(ctx, id, AddItemInput{SKU: "A", Quantity: 3, StockSnapshot: 5})
	require.NoError(t, err)
	assert.False(t, warning)

	// 3+3 exceeds the last known stock of 5; advisory, not an error.
	c, warning, err := svc.AddItem(ctx, id, AddItemInput{SKU: "A", Quantity: 3, StockSnapshot: 5})
	require.NoError(t, err)
	assert.True(t, warning)
	assert.Equal(t, 6, c.Items[0].Quantity)
}

func TestAddItemValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := identity.User("u1")

	_, _, err := svc.AddItem(ctx, id, AddItemInput{SKU: "", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidSKU)

	_, _, err = svc.AddItem(ctx, id, AddItemInput{SKU: "A", Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddItemDefaultsSubSKU(t *testing.T) {
	svc, _ := newTestService(t)

	c, _, err := svc.AddItem(context.Background(), identity.User("u1"), AddItemInput{SKU: "A", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "A", c.Items[0].SubSKU)
}

func TestConcurrentAddsDistinctSKUsAllLand(t *testing.T) {
	svc, _ := newTestService(t)
	id := identity.User("u1")
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.AddItem(ctx, id, AddItemInput{SKU: fmt.Sprintf("sku-%d", i), Quantity: 1})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, c.Items, n)
}

func TestUpdateQuantityZeroRemovesAndIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	id := identity.User("u1")
	ctx := context.Background()

	_, _, err := svc.AddItem(ctx, id, AddItemInput{SKU: "A", Quantity: 2})
	require.NoError(t, err)

	c, err := svc.UpdateQuantity(ctx, id, "A", 0)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	// Removing an absent line is still a success.
	c, err = svc.UpdateQuantity(ctx, id, "A", 0)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestUpdateQuantityAbsentSKUIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	id := identity.User("u1")

	c, err := svc.UpdateQuantity(context.Background(), id, "missing", 3)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestClearEmptiesCart(t *testing.T) {
	svc, _ := newTestService(t)
	id := identity.User("u1")
	ctx := context.Background()

	_, _, err := svc.AddItem(ctx, id, AddItemInput{SKU: "A", Quantity: 1})
	require.NoError(t, err)

	c, err := svc.Clear(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	c, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestGuestCartCarriesExpiry(t *testing.T) {
	svc, _ := newTestService(t)

	guest, err := svc.Get(context.Background(), identity.Guest("tok-1"))
	require.NoError(t, err)
	require.NotNil(t, guest.ExpiresAt)

	user, err := svc.Get(context.Background(), identity.User("u1"))
	require.NoError(t, err)
	assert.Nil(t, user.ExpiresAt)
}

func TestInvalidatedGuestRejected(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	guest := identity.Guest("tok-1")

	require.NoError(t, repo.InvalidateGuest(ctx, guest.Key()))

	_, err := svc.Get(ctx, guest)
	assert.ErrorIs(t, err, ErrGuestInvalidated)

	_, _, err = svc.AddItem(ctx, guest, AddItemInput{SKU: "A", Quantity: 1})
	assert.ErrorIs(t, err, ErrGuestInvalidated)
}
