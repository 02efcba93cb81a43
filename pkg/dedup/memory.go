package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default in-process cache: a mutex-guarded map of
// key to expiry. Entries are evicted lazily under the same lock that
// inserts them, so the map stays bounded by the delivery rate times the
// TTL. The cache is empty after a restart; the dedup window degrades to
// nothing, which is an accepted limitation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// MarkSeen checks and inserts under one lock acquisition. A live entry
// reads as seen without refreshing its expiry: the window runs from the
// first delivery.
func (s *MemoryStore) MarkSeen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.entries[key]; ok && !now.After(expiry) {
		return true, nil
	}
	s.entries[key] = now.Add(s.ttl)

	// Prune a handful of expired neighbors so the map does not grow
	// without bound between inserts.
	pruned := 0
	for k, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, k)
		}
		if pruned++; pruned >= 64 {
			break
		}
	}
	return false, nil
}

// Len reports live entries, counting out anything already expired.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	now := s.now()
	for _, exp := range s.entries {
		if !now.After(exp) {
			n++
		}
	}
	return n
}
