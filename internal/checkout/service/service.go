package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/waroenk/commerce/internal/address"
	cartservice "github.com/waroenk/commerce/internal/cart/service"
	"github.com/waroenk/commerce/internal/checkout"
	"github.com/waroenk/commerce/internal/checkout/repository"
	"github.com/waroenk/commerce/internal/inventory"
	"github.com/waroenk/commerce/internal/payment"
)

type Config struct {
	// ReservationTTL is how long a prepared checkout holds its stock.
	ReservationTTL time.Duration
	// PaymentTimeout bounds the external charge call.
	PaymentTimeout time.Duration
	// SweepInterval is how often overdue sessions are expired in the
	// background; expiry also happens lazily on every read.
	SweepInterval time.Duration
	// Currency stamped on sessions at prepare time.
	Currency string
}

func (c Config) withDefaults() Config {
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = 15 * time.Minute
	}
	if c.PaymentTimeout <= 0 {
		c.PaymentTimeout = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	return c
}

// CheckoutService drives checkout sessions through the state machine.
// Transitions are serialized per session id; Prepare is additionally
// serialized per user so a user cannot race two fresh sessions into
// existence.
type CheckoutService struct {
	cfg       Config
	repo      repository.SessionRepository
	carts     *cartservice.CartService
	locks     inventory.LockManager
	addresses address.Store
	payments  payment.Collaborator

	mu       sync.Mutex
	sessions map[string]*sync.Mutex

	stopSweep chan struct{}
	wg        sync.WaitGroup
}

func NewCheckoutService(
	cfg Config,
	repo repository.SessionRepository,
	carts *cartservice.CartService,
	locks inventory.LockManager,
	addresses address.Store,
	payments payment.Collaborator,
) *CheckoutService {
	s := &CheckoutService{
		cfg:       cfg.withDefaults(),
		repo:      repo,
		carts:     carts,
		locks:     locks,
		addresses: addresses,
		payments:  payments,
		sessions:  make(map[string]*sync.Mutex),
		stopSweep: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop()

	return s
}

// Close stops the expiry sweeper and waits for it to finish.
func (s *CheckoutService) Close() error {
	close(s.stopSweep)
	s.wg.Wait()
	return nil
}

func (s *CheckoutService) sessionLock(key string) func() {
	s.mu.Lock()
	m, ok := s.sessions[key]
	if !ok {
		m = &sync.Mutex{}
		s.sessions[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Get returns the session, expiring it first if it is overdue, so a caller
// never observes a stale LOCKED session.
func (s *CheckoutService) Get(ctx context.Context, sessionID, userID string) (*checkout.Session, error) {
	unlock := s.sessionLock(sessionID)
	defer unlock()

	session, err := s.loadAndExpire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.validateOwnership(session, userID); err != nil {
		return nil, err
	}
	return session, nil
}

// loadAndExpire fetches a session and applies lazy expiry: an overdue
// LOCKED/ADDRESS_SET session transitions to EXPIRED (releasing its holds)
// before being returned. Callers must hold the session lock.
func (s *CheckoutService) loadAndExpire(ctx context.Context, sessionID string) (*checkout.Session, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.IsExpired() {
		if err := s.expire(ctx, session); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// expire releases the session's holds and marks it EXPIRED. Callers must
// hold the session lock.
func (s *CheckoutService) expire(ctx context.Context, session *checkout.Session) error {
	if err := s.locks.Release(ctx, session.ID); err != nil {
		return fmt.Errorf("release holds for expired session %s: %w", session.ID, err)
	}
	session.Status = checkout.StatusExpired
	if err := s.repo.Update(ctx, session); err != nil {
		return err
	}
	log.Printf("checkout session expired: %s", session.ID)
	return nil
}

func (s *CheckoutService) validateOwnership(session *checkout.Session, userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	if session.UserID != userID {
		log.Printf("unauthorized checkout access: user %s on session %s owned by %s",
			userID, session.ID, session.UserID)
		return ErrNotOwner
	}
	return nil
}

func (s *CheckoutService) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOverdue()
		case <-s.stopSweep:
			return
		}
	}
}

// sweepOverdue expires overdue sessions in the background. It re-reads each
// session under its lock, so it contends with normal transitions like any
// other caller and cannot expire a session that just moved on.
func (s *CheckoutService) sweepOverdue() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	overdue, err := s.repo.ListOverdue(ctx, time.Now(), 100)
	if err != nil {
		log.Printf("failed to list overdue checkout sessions: %v", err)
		return
	}

	for _, stale := range overdue {
		unlock := s.sessionLock(stale.ID)
		if _, err := s.loadAndExpire(ctx, stale.ID); err != nil {
			log.Printf("failed to expire checkout session %s: %v", stale.ID, err)
		}
		unlock()
	}
}
