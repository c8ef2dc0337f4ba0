package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps execution timestamps in process memory. Suitable for a
// single instance or tests; multi-instance deployments use the Redis store.
// Counters reset on restart, which briefly under-counts a user's window.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryStore creates an empty in-memory quota store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]time.Time)}
}

func (s *MemoryStore) Admit(ctx context.Context, userID string, cutoff, at time.Time, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.trimLocked(userID, cutoff)
	if len(kept) >= limit {
		return false, nil
	}
	s.entries[userID] = append(kept, at)
	return true, nil
}

func (s *MemoryStore) CountSince(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trimLocked(userID, cutoff)), nil
}

// trimLocked drops expired timestamps and returns the surviving slice.
// Caller holds the mutex.
func (s *MemoryStore) trimLocked(userID string, cutoff time.Time) []time.Time {
	stamps := s.entries[userID]
	kept := stamps[:0]
	for _, ts := range stamps {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(s.entries, userID)
	} else {
		s.entries[userID] = kept
	}
	return kept
}
