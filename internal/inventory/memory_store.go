package inventory

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultReservationTTL is how long a hold survives without renewal.
	DefaultReservationTTL = 15 * time.Minute

	// cleanupInterval is how often the background sweep reclaims expired holds.
	cleanupInterval = 30 * time.Second
)

// MemoryStore implements LockManager with in-memory storage. A single store
// mutex serializes every multi-SKU operation, which is what makes bulk
// locking atomic: no interleaving can observe or create a partial
// reservation, so held quantity per SKU can never exceed on-hand stock.
//
// Expired holds are ignored at read time and reclaimed both lazily and by a
// background sweep, so stock freed by expiry is visible to the next BulkLock
// even before the sweeper runs.
type MemoryStore struct {
	mu     sync.Mutex
	stocks map[string]int              // subSKU -> on-hand
	holds  map[string]map[string]*Hold // sessionID -> subSKU -> hold

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		stocks:      make(map[string]int),
		holds:       make(map[string]map[string]*Hold),
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reclaimExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) reclaimExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for sessionID, holds := range s.holds {
		for subSKU, hold := range holds {
			if hold.Expired(now) {
				delete(holds, subSKU)
			}
		}
		if len(holds) == 0 {
			delete(s.holds, sessionID)
		}
	}
}

// heldFor sums active holds on a variant, skipping expired holds and any
// hold owned by excludeSession (a session re-locking gets its own quantity
// back before availability is computed).
func (s *MemoryStore) heldFor(subSKU, excludeSession string, now time.Time) int {
	total := 0
	for sessionID, holds := range s.holds {
		if sessionID == excludeSession {
			continue
		}
		if hold, ok := holds[subSKU]; ok && !hold.Expired(now) {
			total += hold.Quantity
		}
	}
	return total
}

func (s *MemoryStore) BulkLock(_ context.Context, sessionID string, requests []LockRequest, ttl time.Duration) (*LockSummary, error) {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Sorted order keeps summaries deterministic for callers and tests.
	reqs := make([]LockRequest, len(requests))
	copy(reqs, requests)
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].SubSKU < reqs[j].SubSKU })

	now := time.Now()
	summary := &LockSummary{
		SessionID: sessionID,
		AllLocked: true,
		Lines:     make([]LineResult, 0, len(reqs)),
	}

	// First pass: validate every line against available-to-sell.
	for _, req := range reqs {
		line := LineResult{
			SKU:       req.SKU,
			SubSKU:    req.SubSKU,
			Requested: req.Quantity,
		}

		onHand, exists := s.stocks[req.SubSKU]
		if !exists {
			line.Status = LineNotFound
			summary.AllLocked = false
			summary.Lines = append(summary.Lines, line)
			continue
		}

		available := onHand - s.heldFor(req.SubSKU, sessionID, now)
		line.Available = available
		if available < req.Quantity {
			line.Status = LineInsufficientStock
			summary.AllLocked = false
		} else {
			line.Status = LineLocked
		}
		summary.Lines = append(summary.Lines, line)
	}

	if !summary.AllLocked {
		return summary, nil
	}

	// Second pass: take the holds. Re-locking replaces the session's own
	// previous holds rather than stacking them.
	expiresAt := now.Add(ttl)
	holds := make(map[string]*Hold, len(reqs))
	for _, req := range reqs {
		holds[req.SubSKU] = &Hold{
			SKU:       req.SKU,
			SubSKU:    req.SubSKU,
			Quantity:  req.Quantity,
			SessionID: sessionID,
			ExpiresAt: expiresAt,
		}
	}
	s.holds[sessionID] = holds

	return summary, nil
}

func (s *MemoryStore) Release(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.holds, sessionID)
	return nil
}

func (s *MemoryStore) Extend(_ context.Context, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holds, ok := s.holds[sessionID]
	if !ok {
		return nil
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	for _, hold := range holds {
		if !hold.Expired(now) && expiresAt.After(hold.ExpiresAt) {
			hold.ExpiresAt = expiresAt
		}
	}
	return nil
}

func (s *MemoryStore) Confirm(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holds, ok := s.holds[sessionID]
	if !ok {
		// Already confirmed or released; deducting again would double-count.
		return nil
	}

	now := time.Now()
	for _, hold := range holds {
		if hold.Expired(now) {
			// The hold lapsed; the stock may already be promised to another
			// session, so committing would break the oversell invariant.
			return ErrHoldExpired
		}
	}

	for subSKU, hold := range holds {
		s.stocks[subSKU] -= hold.Quantity
	}
	delete(s.holds, sessionID)
	return nil
}

func (s *MemoryStore) Stock(_ context.Context, subSKUs []string) ([]StockInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	result := make([]StockInfo, 0, len(subSKUs))
	for _, subSKU := range subSKUs {
		onHand, exists := s.stocks[subSKU]
		if !exists {
			continue
		}
		result = append(result, StockInfo{
			SubSKU: subSKU,
			OnHand: onHand,
			Held:   s.heldFor(subSKU, "", now),
		})
	}
	return result, nil
}

func (s *MemoryStore) SetStock(_ context.Context, subSKU string, onHand int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stocks[subSKU] = onHand
	return nil
}

// Close stops the background sweep and waits for it to finish.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}
