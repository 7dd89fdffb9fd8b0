package repository

import (
	"context"
	"errors"
	"time"

	"github.com/waroenk/commerce/internal/checkout"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
)

// OutboxEvent is a pending integration event recorded atomically with the
// session change that produced it, published later by the outbox poller.
type OutboxEvent struct {
	ID          int64
	AggregateID string // checkout session id, used as the Kafka message key
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// SessionRepository persists checkout sessions and their outbox events.
type SessionRepository interface {
	Create(ctx context.Context, s *checkout.Session) error
	Get(ctx context.Context, id string) (*checkout.Session, error)
	Update(ctx context.Context, s *checkout.Session) error

	// UpdateWithEvent applies the session change and records the outbox
	// event in the same transaction, so a finalized order can never be
	// committed without its event (or vice versa).
	UpdateWithEvent(ctx context.Context, s *checkout.Session, event *OutboxEvent) error

	// FindActiveByUser returns the user's newest session still holding
	// locks (LOCKED or ADDRESS_SET), or ErrSessionNotFound.
	FindActiveByUser(ctx context.Context, userID string) (*checkout.Session, error)

	// ListOverdue returns sessions past their expiry that still hold locks,
	// for the expiry sweeper.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*checkout.Session, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, eventID int64) error
}
