package payment

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the breaker is open; the session stays in
// its pre-call state and the caller may retry later.
var ErrUnavailable = errors.New("payment service unavailable")

// Breaker wraps a Collaborator with a circuit breaker so a struggling
// gateway fails fast instead of tying up checkout sessions until their
// reservations expire. Declines are business outcomes, not faults, and do
// not trip the breaker.
type Breaker struct {
	next Collaborator
	cb   *gobreaker.CircuitBreaker[*Result]
}

func NewBreaker(next Collaborator) *Breaker {
	settings := gobreaker.Settings{
		Name:    "payment",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDeclined)
		},
	}
	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[*Result](settings),
	}
}

func (b *Breaker) Charge(ctx context.Context, reference string, amount float64) (*Result, error) {
	result, err := b.cb.Execute(func() (*Result, error) {
		return b.next.Charge(ctx, reference, amount)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	return result, err
}
