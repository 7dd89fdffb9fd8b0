package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/waroenk/commerce/internal/checkout"
	"github.com/waroenk/commerce/internal/checkout/repository"
	"github.com/waroenk/commerce/internal/identity"
	"github.com/waroenk/commerce/internal/inventory"
)

// Prepare snapshots the user's cart into a new checkout session and bulk
// locks its stock. On full success the session is LOCKED with a reservation
// deadline and the cart is emptied (the items now live in the session). On
// any shortfall the session is CANCELLED immediately, nothing stays held,
// and the summary tells the caller which lines were short.
//
// If the user already has an unexpired session holding locks, that session
// is returned instead of double-locking stock.
func (s *CheckoutService) Prepare(ctx context.Context, id identity.Identity) (*checkout.Session, *inventory.LockSummary, error) {
	if !id.IsUser() {
		return nil, nil, ErrUnauthorized
	}
	userID := id.ID

	// One prepare at a time per user; two racing prepares must not both
	// pass the active-session check.
	unlock := s.sessionLock("prepare:" + userID)
	defer unlock()

	existing, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, nil, err
	}
	if existing != nil {
		if !existing.IsExpired() {
			log.Printf("existing active checkout found for user %s: %s", userID, existing.ID)
			return existing, nil, nil
		}
		sessionUnlock := s.sessionLock(existing.ID)
		_, expireErr := s.loadAndExpire(ctx, existing.ID)
		sessionUnlock()
		if expireErr != nil {
			return nil, nil, expireErr
		}
	}

	cart, err := s.carts.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if len(cart.Items) == 0 {
		return nil, nil, ErrEmptyCart
	}

	sessionID := "chk-" + uuid.New().String()[:8]

	items := make([]checkout.Item, 0, len(cart.Items))
	requests := make([]inventory.LockRequest, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, checkout.Item{
			SKU:           line.SKU,
			SubSKU:        line.SubSKU,
			Quantity:      line.Quantity,
			PriceSnapshot: line.PriceSnapshot,
			TitleSnapshot: line.TitleSnapshot,
			ImageSnapshot: line.ImageSnapshot,
			StockSnapshot: line.StockSnapshot,
		})
		requests = append(requests, inventory.LockRequest{
			SKU:      line.SKU,
			SubSKU:   line.SubSKU,
			Quantity: line.Quantity,
		})
	}

	now := time.Now()
	session := &checkout.Session{
		ID:         sessionID,
		UserID:     userID,
		Items:      items,
		Status:     checkout.StatusWaiting,
		TotalPrice: cart.TotalPrice(),
		Currency:   s.cfg.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.ReservationTTL),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, nil, err
	}

	summary, err := s.locks.BulkLock(ctx, sessionID, requests, s.cfg.ReservationTTL)
	if err != nil {
		session.Status = checkout.StatusCancelled
		if updateErr := s.repo.Update(ctx, session); updateErr != nil {
			log.Printf("failed to cancel checkout %s after lock error: %v", sessionID, updateErr)
		}
		return nil, nil, err
	}

	if !summary.AllLocked {
		// All-or-nothing: nothing is held, close the session right away so
		// no dangling partial lock can exist.
		session.Status = checkout.StatusCancelled
		if err := s.repo.Update(ctx, session); err != nil {
			return nil, summary, err
		}
		return session, summary, ErrInsufficientStock
	}

	session.Status = checkout.StatusLocked
	if err := s.repo.Update(ctx, session); err != nil {
		// The holds would dangle without a LOCKED session to own them.
		if releaseErr := s.locks.Release(ctx, sessionID); releaseErr != nil {
			log.Printf("failed to release holds for %s after update error: %v", sessionID, releaseErr)
		}
		return nil, nil, err
	}

	// Items moved into the session; empty the cart. Best effort: a failure
	// leaves a stale cart, not an inconsistent checkout.
	if _, err := s.carts.Clear(ctx, id); err != nil {
		log.Printf("failed to clear cart after prepare for %s: %v", id.Key(), err)
	}

	log.Printf("checkout prepared: %s for user %s (%d items)", sessionID, userID, len(items))
	return session, summary, nil
}
