package gateway

import (
	"sync"
	"time"
)

// PendingAuthRequest tracks an authorization request awaiting its callback.
// It is keyed by the browser's flow id, not by state, so one browser cannot
// inject state into another's flow.
type PendingAuthRequest struct {
	State       string
	Nonce       string
	OriginalURL string
	Popup       bool
	CreatedAt   time.Time
}

// PendingStore holds outstanding authorization requests. Consume is
// remove-and-return: a second consume of the same flow id misses, which is
// what makes a replayed callback fail.
type PendingStore interface {
	Save(flowID string, req PendingAuthRequest)
	Consume(flowID string) (PendingAuthRequest, bool)
	Sweep(now time.Time) int
}

// memoryPendingStore is the single-process implementation.
type memoryPendingStore struct {
	mu      sync.Mutex
	pending map[string]PendingAuthRequest
	ttl     time.Duration
}

// NewPendingStore constructs a map-backed pending request store. Records
// older than ttl are treated as gone; abandoned flows expire naturally.
func NewPendingStore(ttl time.Duration) PendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &memoryPendingStore{
		pending: make(map[string]PendingAuthRequest),
		ttl:     ttl,
	}
}

func (s *memoryPendingStore) Save(flowID string, req PendingAuthRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[flowID] = req
}

func (s *memoryPendingStore) Consume(flowID string) (PendingAuthRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[flowID]
	if !ok {
		return PendingAuthRequest{}, false
	}
	delete(s.pending, flowID)
	if time.Since(req.CreatedAt) > s.ttl {
		return PendingAuthRequest{}, false
	}
	return req, true
}

func (s *memoryPendingStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, req := range s.pending {
		if now.Sub(req.CreatedAt) > s.ttl {
			delete(s.pending, id)
			removed++
		}
	}
	return removed
}
