package inventory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBulkLockReservesAllLines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 10))
	require.NoError(t, s.SetStock(ctx, "B", 5))

	summary, err := s.BulkLock(ctx, "s1", []LockRequest{
		{SKU: "A", SubSKU: "A", Quantity: 3},
		{SKU: "B", SubSKU: "B", Quantity: 5},
	}, time.Minute)
	require.NoError(t, err)
	assert.True(t, summary.AllLocked)
	require.Len(t, summary.Lines, 2)
	for _, line := range summary.Lines {
		assert.Equal(t, LineLocked, line.Status)
	}

	stock, err := s.Stock(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, 3, stock[0].Held)
	assert.Equal(t, 5, stock[1].Held)
}

func TestBulkLockAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 10))
	require.NoError(t, s.SetStock(ctx, "B", 2))

	summary, err := s.BulkLock(ctx, "s1", []LockRequest{
		{SKU: "A", SubSKU: "A", Quantity: 3},
		{SKU: "B", SubSKU: "B", Quantity: 5},
	}, time.Minute)
	require.NoError(t, err)
	assert.False(t, summary.AllLocked)

	// Nothing may be held after a shortfall, including the line that had
	// enough stock.
	stock, err := s.Stock(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, 0, stock[0].Held)
	assert.Equal(t, 0, stock[1].Held)
}

func TestBulkLockReportsAvailableOnShortfall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 5))

	_, err := s.BulkLock(ctx, "s1", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 2}}, time.Minute)
	require.NoError(t, err)

	summary, err := s.BulkLock(ctx, "s2", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 4}}, time.Minute)
	require.NoError(t, err)
	assert.False(t, summary.AllLocked)
	require.Len(t, summary.Lines, 1)
	assert.Equal(t, LineInsufficientStock, summary.Lines[0].Status)
	assert.Equal(t, 3, summary.Lines[0].Available)
}

func TestBulkLockUnknownSKU(t *testing.T) {
	s := newTestStore(t)

	summary, err := s.BulkLock(context.Background(), "s1",
		[]LockRequest{{SKU: "nope", SubSKU: "nope", Quantity: 1}}, time.Minute)
	require.NoError(t, err)
	assert.False(t, summary.AllLocked)
	assert.Equal(t, LineNotFound, summary.Lines[0].Status)
}

func TestBulkLockSameSessionReplacesHolds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 5))

	_, err := s.BulkLock(ctx, "s1", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 4}}, time.Minute)
	require.NoError(t, err)

	// The session gets its own quantity back before availability is
	// computed, so a re-lock does not stack.
	summary, err := s.BulkLock(ctx, "s1", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 5}}, time.Minute)
	require.NoError(t, err)
	assert.True(t, summary.AllLocked)

	stock, err := s.Stock(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 5, stock[0].Held)
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 5))

	_, err := s.BulkLock(ctx, "s1", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 2}}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, "s1"))
	require.NoError(t, s.Release(ctx, "s1"))
	require.NoError(t, s.Release(ctx, "never-existed"))

	stock, err := s.Stock(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 0, stock[0].Held)
}

func TestExpiredHoldFreesStockLazily(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 5))

	_, err := s.BulkLock(ctx, "s1", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 5}}, 30*time.Millisecond)
	require.NoError(t, err)

	// Before expiry another session sees no availability.
	summary, err := s.BulkLock(ctx, "s2", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 1}}, time.Minute)
	require.NoError(t, err)
	assert.False(t, summary.AllLocked)

	time.Sleep(50 * time.Millisecond)

	// After expiry the stock is visible immediately, without waiting for
	// the background sweep.
	summary, err = s.BulkLock(ctx, "s2", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 5}}, time.Minute)
	require.NoError(t, err)
	assert.True(t, summary.AllLocked)
}

func TestExtendKeepsHoldAlive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 5))

	_, err := s.BulkLock(ctx, "s1", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 5}}, 40*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, s.Extend(ctx, "s1", time.Minute))
	time.Sleep(60 * time.Millisecond)

	// The extended hold still blocks other sessions past the original TTL.
	summary, err := s.BulkLock(ctx, "s2", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 1}}, time.Minute)
	require.NoError(t, err)
	assert.False(t, summary.AllLocked)

	// Extending a released session is a silent no-op.
	require.NoError(t, s.Release(ctx, "s1"))
	require.NoError(t, s.Extend(ctx, "s1", time.Minute))
}

func TestConfirmDeductsOnHandOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 5))

	_, err := s.BulkLock(ctx, "s1", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 2}}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Confirm(ctx, "s1"))

	stock, err := s.Stock(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 3, stock[0].OnHand)
	assert.Equal(t, 0, stock[0].Held)

	// A retried confirm must not deduct again.
	require.NoError(t, s.Confirm(ctx, "s1"))
	stock, err = s.Stock(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 3, stock[0].OnHand)
}

func TestConfirmExpiredHoldFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, "A", 5))

	_, err := s.BulkLock(ctx, "s1", []LockRequest{{SKU: "A", SubSKU: "A", Quantity: 2}}, 20*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	err = s.Confirm(ctx, "s1")
	assert.ErrorIs(t, err, ErrHoldExpired)

	stock, err := s.Stock(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 5, stock[0].OnHand)
}

// Held quantity for a variant must never exceed on-hand stock, no matter how
// lock/release/confirm calls interleave.
func TestConcurrentLockingNeverOversells(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const onHand = 10
	require.NoError(t, s.SetStock(ctx, "A", onHand))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s%d", i)
			qty := rand.Intn(4) + 1

			summary, err := s.BulkLock(ctx, sessionID,
				[]LockRequest{{SKU: "A", SubSKU: "A", Quantity: qty}}, time.Minute)
			assert.NoError(t, err)

			if summary.AllLocked && rand.Intn(2) == 0 {
				assert.NoError(t, s.Release(ctx, sessionID))
			}
		}(i)
	}
	wg.Wait()

	stock, err := s.Stock(ctx, []string{"A"})
	require.NoError(t, err)
	assert.LessOrEqual(t, stock[0].Held, onHand)
	assert.GreaterOrEqual(t, stock[0].Held, 0)
}
