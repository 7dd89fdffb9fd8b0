package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/waroenk/commerce/internal/checkout"
)

// MemoryRepository is an in-memory SessionRepository for tests and
// single-node development runs.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*checkout.Session
	events   []*OutboxEvent
	nextID   int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*checkout.Session),
		nextID:   1,
	}
}

func (r *MemoryRepository) Create(_ context.Context, s *checkout.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*checkout.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, s *checkout.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	s.UpdatedAt = time.Now()
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) UpdateWithEvent(_ context.Context, s *checkout.Session, event *OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	s.UpdatedAt = time.Now()
	r.sessions[s.ID] = s.Clone()

	ev := *event
	ev.ID = r.nextID
	ev.CreatedAt = time.Now()
	r.nextID++
	r.events = append(r.events, &ev)
	return nil
}

func (r *MemoryRepository) FindActiveByUser(_ context.Context, userID string) (*checkout.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *checkout.Session
	for _, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		if s.Status != checkout.StatusLocked && s.Status != checkout.StatusAddressSet {
			continue
		}
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	if newest == nil {
		return nil, ErrSessionNotFound
	}
	return newest.Clone(), nil
}

func (r *MemoryRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]*checkout.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var overdue []*checkout.Session
	for _, s := range r.sessions {
		if (s.Status == checkout.StatusLocked || s.Status == checkout.StatusAddressSet) && now.After(s.ExpiresAt) {
			overdue = append(overdue, s.Clone())
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].ExpiresAt.Before(overdue[j].ExpiresAt) })
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func (r *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []*OutboxEvent
	for _, ev := range r.events {
		if ev.ProcessedAt == nil {
			cp := *ev
			pending = append(pending, &cp)
			if limit > 0 && len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (r *MemoryRepository) MarkEventProcessed(_ context.Context, eventID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range r.events {
		if ev.ID == eventID {
			now := time.Now()
			ev.ProcessedAt = &now
			return nil
		}
	}
	return nil
}
