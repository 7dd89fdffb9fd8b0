package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/waroenk/commerce/internal/cart"
	"github.com/waroenk/commerce/internal/cart/cache"
	"github.com/waroenk/commerce/internal/cart/repository"
	"github.com/waroenk/commerce/internal/identity"
)

var (
	// ErrGuestInvalidated is returned for any cart operation on a guest
	// identity that has already been merged into a user account.
	ErrGuestInvalidated = errors.New("guest identity has been merged and is no longer valid")

	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidSKU      = errors.New("sku is required")
)

// AddItemInput carries the line to add plus the snapshots the caller knows at
// add time. StockSnapshot is advisory; the cart never rejects over-quantity
// adds.
type AddItemInput struct {
	SKU           string
	SubSKU        string
	Quantity      int
	PriceSnapshot float64
	TitleSnapshot string
	ImageSnapshot string
	StockSnapshot int
}

// CartService is the single source of truth for cart contents. All mutations
// are read-modify-write serialized per identity key, so concurrent adds on
// the same identity both land.
type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	sfg   singleflight.Group // prevents cache stampede on reads
	keys  *keyedMutex
}

func NewCartService(repo repository.CartRepository, c cache.CartCache) *CartService {
	return &CartService{
		repo:  repo,
		cache: c,
		keys:  newKeyedMutex(),
	}
}

// Get returns the identity's cart. An identity with no cart gets an empty
// cart, not an error.
func (s *CartService) Get(ctx context.Context, id identity.Identity) (*cart.Cart, error) {
	if err := s.checkGuest(ctx, id); err != nil {
		return nil, err
	}

	key := id.Key()
	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		c, err := s.cache.Get(ctx, key)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cart cache get error for %s: %v", key, err)
		}

		c, err = s.repo.GetCart(ctx, key)
		if errors.Is(err, repository.ErrCartNotFound) {
			return s.emptyCart(id), nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			if err := s.cache.Set(context.Background(), key, c); err != nil {
				log.Printf("cart cache set error for %s: %v", key, err)
			}
		}()

		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cart.Cart), nil
}

// AddItem accumulates quantity onto an existing line or appends a new one.
// The returned warning is true when the requested total exceeds the last
// known stock snapshot; it is caller-visible advice, not a failure.
func (s *CartService) AddItem(ctx context.Context, id identity.Identity, in AddItemInput) (*cart.Cart, bool, error) {
	if in.SKU == "" {
		return nil, false, ErrInvalidSKU
	}
	if in.Quantity <= 0 {
		return nil, false, ErrInvalidQuantity
	}
	if in.SubSKU == "" {
		in.SubSKU = in.SKU
	}

	key := id.Key()
	unlock := s.keys.Lock(key)
	defer unlock()

	if err := s.checkGuest(ctx, id); err != nil {
		return nil, false, err
	}

	c, err := s.loadForWrite(ctx, id)
	if err != nil {
		return nil, false, err
	}

	warning := false
	if i := c.FindItem(in.SKU); i >= 0 {
		item := &c.Items[i]
		item.Quantity += in.Quantity
		item.StockSnapshot = in.StockSnapshot
		if in.StockSnapshot > 0 && item.Quantity > in.StockSnapshot {
			warning = true
		}
	} else {
		if in.StockSnapshot > 0 && in.Quantity > in.StockSnapshot {
			warning = true
		}
		c.Items = append(c.Items, cart.Item{
			SKU:           in.SKU,
			SubSKU:        in.SubSKU,
			Quantity:      in.Quantity,
			PriceSnapshot: in.PriceSnapshot,
			TitleSnapshot: in.TitleSnapshot,
			ImageSnapshot: in.ImageSnapshot,
			StockSnapshot: in.StockSnapshot,
			AddedAt:       time.Now(),
		})
	}

	if err := s.repo.UpsertCart(ctx, c); err != nil {
		return nil, false, err
	}
	s.invalidateCache(key)
	return c, warning, nil
}

// UpdateQuantity sets the line's quantity. A quantity of zero or less removes
// the line; removing an absent line is a success, so retries are idempotent.
func (s *CartService) UpdateQuantity(ctx context.Context, id identity.Identity, sku string, quantity int) (*cart.Cart, error) {
	if sku == "" {
		return nil, ErrInvalidSKU
	}

	key := id.Key()
	unlock := s.keys.Lock(key)
	defer unlock()

	if err := s.checkGuest(ctx, id); err != nil {
		return nil, err
	}

	c, err := s.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		c.RemoveItem(sku)
	} else if i := c.FindItem(sku); i >= 0 {
		c.Items[i].Quantity = quantity
	} else {
		// Updating an absent sku to a positive quantity is a no-op rather
		// than an insert: the caller has no snapshots to attach.
		return c, nil
	}

	if err := s.repo.UpsertCart(ctx, c); err != nil {
		return nil, err
	}
	s.invalidateCache(key)
	return c, nil
}

// RemoveItem drops the line. Removing an absent line succeeds.
func (s *CartService) RemoveItem(ctx context.Context, id identity.Identity, sku string) (*cart.Cart, error) {
	return s.UpdateQuantity(ctx, id, sku, 0)
}

// Clear empties the identity's cart.
func (s *CartService) Clear(ctx context.Context, id identity.Identity) (*cart.Cart, error) {
	key := id.Key()
	unlock := s.keys.Lock(key)
	defer unlock()

	if err := s.checkGuest(ctx, id); err != nil {
		return nil, err
	}

	err := s.repo.DeleteCart(ctx, key)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return nil, err
	}
	s.invalidateCache(key)
	return s.emptyCart(id), nil
}

func (s *CartService) checkGuest(ctx context.Context, id identity.Identity) error {
	if id.IsUser() {
		return nil
	}
	invalidated, err := s.repo.IsGuestInvalidated(ctx, id.Key())
	if err != nil {
		return err
	}
	if invalidated {
		return ErrGuestInvalidated
	}
	return nil
}

func (s *CartService) loadForWrite(ctx context.Context, id identity.Identity) (*cart.Cart, error) {
	c, err := s.repo.GetCart(ctx, id.Key())
	if errors.Is(err, repository.ErrCartNotFound) {
		return s.emptyCart(id), nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CartService) emptyCart(id identity.Identity) *cart.Cart {
	c := &cart.Cart{
		OwnerKey:  id.Key(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if !id.IsUser() {
		expires := time.Now().Add(repository.GuestCartTTL)
		c.ExpiresAt = &expires
	}
	return c
}

func (s *CartService) invalidateCache(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Printf("cart cache invalidate error for %s: %v", key, err)
	}
}
