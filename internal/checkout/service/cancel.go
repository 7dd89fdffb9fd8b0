package service

import (
	"context"
	"log"

	"github.com/waroenk/commerce/internal/checkout"
)

// Cancel releases the session's stock holds and marks it CANCELLED.
// Cancelling a session already in a terminal status returns it unchanged, so
// a retried cancel is harmless.
func (s *CheckoutService) Cancel(ctx context.Context, sessionID, userID string) (*checkout.Session, error) {
	unlock := s.sessionLock(sessionID)
	defer unlock()

	session, err := s.loadAndExpire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.validateOwnership(session, userID); err != nil {
		return nil, err
	}

	if session.Status.IsTerminal() {
		return session, nil
	}
	if !checkout.CanTransitionTo(session.Status, checkout.StatusCancelled) {
		return session, ErrInvalidTransition
	}

	if err := s.locks.Release(ctx, sessionID); err != nil {
		return nil, err
	}

	session.Status = checkout.StatusCancelled
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("checkout cancelled: %s by user %s", sessionID, userID)
	return session, nil
}
