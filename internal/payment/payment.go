package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrDeclined is the expected business failure: the charge was refused. The
// caller keeps its reservation and may retry. Any other error means the
// collaborator itself failed (timeout, unreachable) and the charge outcome
// is unknown.
var ErrDeclined = errors.New("payment declined")

// Result is the outcome of a successful charge call.
type Result struct {
	TransactionID string
	Reference     string
}

// Collaborator is the opaque external payment service. Charges are keyed by
// reference (the checkout session id) so a retried charge after a timeout is
// idempotent on the gateway side.
type Collaborator interface {
	Charge(ctx context.Context, reference string, amount float64) (*Result, error)
}

// StatusSource decides the outcome of a stub charge; injectable so tests can
// force declines.
type StatusSource interface {
	Approve() bool
}

// AlwaysApprove approves every charge.
type AlwaysApprove struct{}

func (AlwaysApprove) Approve() bool { return true }

// RandomStatus approves ~95% of charges, mimicking gateway declines.
type RandomStatus struct{}

func (RandomStatus) Approve() bool { return rand.Intn(100) < 95 }

// Stub is a local stand-in for the real gateway.
type Stub struct {
	status StatusSource
}

func NewStub(status StatusSource) *Stub {
	return &Stub{status: status}
}

func (s *Stub) Charge(ctx context.Context, reference string, amount float64) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if !s.status.Approve() {
		return nil, ErrDeclined
	}

	return &Result{
		TransactionID: fmt.Sprintf("TXN-%d", time.Now().UnixNano()),
		Reference:     reference,
	}, nil
}
