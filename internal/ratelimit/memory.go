package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how many Incr calls pass between bulk sweeps of expired
// entries. Expired entries are otherwise reset lazily on access, so the sweep
// only bounds memory, trading slightly stale entries for per-request cost.
const sweepInterval = 1000

type entry struct {
	count int
	reset time.Time
}

// MemoryStore is the mutex-guarded in-process default store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	checks  int
	now     func() time.Time
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Incr implements Store.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.checks++
	if s.checks%sweepInterval == 0 {
		s.sweepLocked(now)
	}

	e, ok := s.entries[key]
	if !ok || !now.Before(e.reset) {
		e = &entry{count: 0, reset: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.reset, nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, e := range s.entries {
		if !now.Before(e.reset) {
			delete(s.entries, key)
		}
	}
}
