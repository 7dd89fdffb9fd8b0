package repository

import (
	"context"
	"sync"
	"time"

	"github.com/waroenk/commerce/internal/cart"
)

// MemoryRepository is an in-memory CartRepository for tests and single-node
// development runs.
type MemoryRepository struct {
	mu           sync.RWMutex
	carts        map[string]*cart.Cart
	mergedGuests map[string]time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		carts:        make(map[string]*cart.Cart),
		mergedGuests: make(map[string]time.Time),
	}
}

func (r *MemoryRepository) GetCart(_ context.Context, ownerKey string) (*cart.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[ownerKey]
	if !ok {
		return nil, ErrCartNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryRepository) UpsertCart(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.carts[c.OwnerKey] = c.Clone()
	return nil
}

func (r *MemoryRepository) DeleteCart(_ context.Context, ownerKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[ownerKey]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, ownerKey)
	return nil
}

func (r *MemoryRepository) InvalidateGuest(_ context.Context, guestKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mergedGuests[guestKey]; !ok {
		r.mergedGuests[guestKey] = time.Now()
	}
	return nil
}

func (r *MemoryRepository) IsGuestInvalidated(_ context.Context, guestKey string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.mergedGuests[guestKey]
	return ok, nil
}
