package inventory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSKUNotFound = errors.New("sku not found")
	// ErrHoldExpired is returned by Confirm when a session's hold lapsed
	// before it could be committed; the caller must treat the session as
	// expired rather than deduct on-hand stock it no longer holds.
	ErrHoldExpired = errors.New("hold has expired")
)

// LockManager grants time-boxed reservations against available-to-sell
// stock. Reservations are keyed by checkout session id, so a retried call
// for the same session is idempotent rather than additive.
type LockManager interface {
	// BulkLock reserves every requested line or nothing (all-or-nothing).
	// The summary always carries per-line outcomes; the error is nil even
	// when locking fails, since a shortfall is an expected outcome, not a
	// fault.
	BulkLock(ctx context.Context, sessionID string, requests []LockRequest, ttl time.Duration) (*LockSummary, error)

	// Release drops all holds tied to a session. Releasing an unknown or
	// already-released session is a success no-op.
	Release(ctx context.Context, sessionID string) error

	// Extend pushes the session's holds out to now+ttl. Silent no-op when
	// the holds are already gone.
	Extend(ctx context.Context, sessionID string, ttl time.Duration) error

	// Confirm permanently deducts the held quantities from on-hand stock
	// and drops the holds. This is the only operation that mutates on-hand.
	// Confirming an unknown session is a no-op, which makes retries after
	// a timeout safe: stock cannot be decremented twice.
	Confirm(ctx context.Context, sessionID string) error

	// Stock reports current stock for the given variants.
	Stock(ctx context.Context, subSKUs []string) ([]StockInfo, error)

	// SetStock sets on-hand stock for a variant (seeding/admin).
	SetStock(ctx context.Context, subSKU string, onHand int) error
}
