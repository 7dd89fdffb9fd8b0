package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/waroenk/commerce/internal/address"
	"github.com/waroenk/commerce/internal/checkout"
)

// Finalize attaches a shipping address to a LOCKED session and transitions
// it to ADDRESS_SET, stamping the order id and payment code the order will
// carry. Re-finalizing an ADDRESS_SET session with the same address is a
// no-op success so client retries are safe.
func (s *CheckoutService) Finalize(ctx context.Context, sessionID, userID, addressID string, newAddress *address.Address) (*checkout.Session, error) {
	unlock := s.sessionLock(sessionID)
	defer unlock()

	session, err := s.loadAndExpire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.validateOwnership(session, userID); err != nil {
		return nil, err
	}

	if session.Status == checkout.StatusAddressSet && addressID != "" && session.AddressID == addressID {
		return session, nil
	}
	if session.Status == checkout.StatusExpired {
		return session, ErrSessionExpired
	}
	if !checkout.CanTransitionTo(session.Status, checkout.StatusAddressSet) {
		return session, ErrInvalidTransition
	}

	var addr *address.Address
	switch {
	case addressID != "":
		addr, err = s.addresses.Get(ctx, userID, addressID)
		if err != nil {
			return nil, err
		}
	case newAddress != nil:
		newAddress.UserID = userID
		addr, err = s.addresses.Create(ctx, newAddress)
		if err != nil {
			return nil, err
		}
	default:
		return session, ErrAddressRequired
	}

	session.AddressID = addr.ID
	session.OrderID = generateOrderID()
	session.PaymentCode = generatePaymentCode()
	session.Status = checkout.StatusAddressSet

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("checkout finalized: %s order %s", sessionID, session.OrderID)
	return session, nil
}

func generateOrderID() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), uuid.New().String()[:8])
}

func generatePaymentCode() string {
	return fmt.Sprintf("PAY-%s", uuid.New().String()[:12])
}
