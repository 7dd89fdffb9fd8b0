package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/waroenk/commerce/internal/cart"
	"github.com/waroenk/commerce/internal/cart/repository"
	"github.com/waroenk/commerce/internal/identity"
)

// Merge folds a guest cart into the user's cart exactly once, then
// permanently invalidates the guest identity. Runs once per login event.
//
// Quantities sum on SKU collision; the user's own price/title/image
// snapshots win, so a stale guest snapshot never overwrites them. A retried
// merge for an already-invalidated guest returns the user's current cart
// unchanged. The caller should clear the guest token cookie on success.
func (s *CartService) Merge(ctx context.Context, guestToken, userID string) (*cart.Cart, error) {
	guest := identity.Guest(guestToken)
	user := identity.User(userID)
	guestKey, userKey := guest.Key(), user.Key()

	unlock := s.keys.LockPair(guestKey, userKey)
	defer unlock()

	invalidated, err := s.repo.IsGuestInvalidated(ctx, guestKey)
	if err != nil {
		return nil, err
	}
	if invalidated {
		// Merge already happened; return the user cart as-is.
		return s.loadForWrite(ctx, user)
	}

	userCart, err := s.loadForWrite(ctx, user)
	if err != nil {
		return nil, err
	}

	guestCart, err := s.repo.GetCart(ctx, guestKey)
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		// Nothing to merge; still burn the guest identity so a replayed
		// token cannot resurrect a cart later.
		guestCart = nil
	case err != nil:
		return nil, err
	}

	if guestCart != nil {
		for _, guestItem := range guestCart.Items {
			if i := userCart.FindItem(guestItem.SKU); i >= 0 {
				userCart.Items[i].Quantity += guestItem.Quantity
			} else {
				guestItem.AddedAt = time.Now()
				userCart.Items = append(userCart.Items, guestItem)
			}
		}
		userCart.ExpiresAt = nil

		if err := s.repo.UpsertCart(ctx, userCart); err != nil {
			return nil, err
		}

		if err := s.repo.DeleteCart(ctx, guestKey); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
			return nil, err
		}
	}

	if err := s.repo.InvalidateGuest(ctx, guestKey); err != nil {
		return nil, err
	}

	s.invalidateCache(guestKey)
	s.invalidateCache(userKey)

	log.Printf("merged guest cart %s into %s (%d items)", guestKey, userKey, len(userCart.Items))
	return userCart, nil
}
