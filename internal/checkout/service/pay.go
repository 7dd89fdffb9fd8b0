package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/waroenk/commerce/internal/checkout"
	"github.com/waroenk/commerce/internal/checkout/repository"
	"github.com/waroenk/commerce/internal/inventory"
	"github.com/waroenk/commerce/internal/payment"
)

// EventCheckoutCompleted is written to the outbox when a session reaches
// FINALIZED; downstream order fulfilment consumes it from Kafka.
const EventCheckoutCompleted = "checkout.completed"

type checkoutCompletedPayload struct {
	CheckoutID  string          `json:"checkout_id"`
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Items       []checkout.Item `json:"items"`
	TotalAmount float64         `json:"total_amount"`
	Currency    string          `json:"currency"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Pay charges the session's total and, on approval, converts its stock holds
// into permanent decrements and finalizes the order. Outcomes:
//
//   - approved: PAID, holds confirmed, then FINALIZED with the completion
//     event recorded in the same transaction.
//   - declined: the session stays ADDRESS_SET with its holds intact; the
//     user may retry with another instrument while the reservation lasts.
//   - timeout or gateway outage: ErrPaymentTimeout, state unchanged. The
//     charge is keyed by session id, so a retry is idempotent gateway-side.
//
// Paying an already FINALIZED session returns it unchanged; stock is never
// decremented twice.
func (s *CheckoutService) Pay(ctx context.Context, sessionID, userID string) (*checkout.Session, error) {
	unlock := s.sessionLock(sessionID)
	defer unlock()

	session, err := s.loadAndExpire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.validateOwnership(session, userID); err != nil {
		return nil, err
	}

	if session.Status == checkout.StatusFinalized {
		return session, nil
	}
	if session.Status == checkout.StatusExpired {
		return session, ErrSessionExpired
	}
	if !checkout.CanTransitionTo(session.Status, checkout.StatusPaid) {
		return session, ErrInvalidTransition
	}

	// Give the holds room to survive the charge call plus confirmation, so
	// a reservation cannot lapse mid-payment.
	if err := s.locks.Extend(ctx, sessionID, s.cfg.PaymentTimeout+s.cfg.ReservationTTL); err != nil {
		return nil, err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	result, err := s.payments.Charge(chargeCtx, sessionID, session.TotalPrice)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrDeclined):
			log.Printf("payment declined for checkout %s", sessionID)
			return session, ErrPaymentDeclined
		case errors.Is(err, payment.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
			log.Printf("payment unavailable for checkout %s: %v", sessionID, err)
			return session, ErrPaymentTimeout
		default:
			return nil, err
		}
	}

	session.Status = checkout.StatusPaid
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, err
	}
	log.Printf("checkout paid: %s txn %s", sessionID, result.TransactionID)

	// Convert holds into real decrements. If the holds lapsed between the
	// extend and now, the stock may already be promised elsewhere; the
	// session cannot be finalized.
	if err := s.locks.Confirm(ctx, sessionID); err != nil {
		if errors.Is(err, inventory.ErrHoldExpired) {
			log.Printf("holds expired before confirm for checkout %s", sessionID)
			if expireErr := s.expire(ctx, session); expireErr != nil {
				return nil, expireErr
			}
			return session, ErrSessionExpired
		}
		return nil, err
	}

	now := time.Now()
	session.Status = checkout.StatusFinalized
	session.UpdatedAt = now

	payload, err := json.Marshal(checkoutCompletedPayload{
		CheckoutID:  session.ID,
		OrderID:     session.OrderID,
		UserID:      session.UserID,
		Items:       session.Items,
		TotalAmount: session.TotalPrice,
		Currency:    session.Currency,
		CompletedAt: now,
	})
	if err != nil {
		return nil, err
	}

	event := &repository.OutboxEvent{
		AggregateID: session.ID,
		EventType:   EventCheckoutCompleted,
		Payload:     payload,
		CreatedAt:   now,
	}
	if err := s.repo.UpdateWithEvent(ctx, session, event); err != nil {
		return nil, err
	}

	log.Printf("checkout finalized: %s order %s", sessionID, session.OrderID)
	return session, nil
}
