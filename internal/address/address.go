package address

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrAddressNotFound = errors.New("address not found")

// Address is a shipping address owned by a user.
type Address struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

// Store is the address collaborator consumed by the checkout orchestrator.
// Lookups are scoped by user, so one user can never finalize against
// another's address.
type Store interface {
	Get(ctx context.Context, userID, addressID string) (*Address, error)
	Create(ctx context.Context, addr *Address) (*Address, error)
	List(ctx context.Context, userID string) ([]*Address, error)
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	addresses map[string]*Address
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{addresses: make(map[string]*Address)}
}

func (s *MemoryStore) Get(_ context.Context, userID, addressID string) (*Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr, ok := s.addresses[addressID]
	if !ok || addr.UserID != userID {
		return nil, ErrAddressNotFound
	}
	cp := *addr
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, addr *Address) (*Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *addr
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	s.addresses[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]*Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Address
	for _, addr := range s.addresses {
		if addr.UserID == userID {
			cp := *addr
			result = append(result, &cp)
		}
	}
	return result, nil
}
