// Package dedup tracks the fingerprints of trade events already seen by
// the engine. Membership is permanent for the process lifetime: the set
// only grows, bounded by the watched wallet's trade volume, and is
// rebuilt from a baseline snapshot on every start-of-watch.
package dedup

import "sync"

// Set is a grow-only fingerprint set safe for concurrent readers.
type Set struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewSet creates an empty fingerprint set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Seen reports whether the fingerprint was recorded before.
func (s *Set) Seen(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[fingerprint]
	return ok
}

// Record marks the fingerprint as seen. Recording an already-seen
// fingerprint is a no-op.
func (s *Set) Record(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[fingerprint] = struct{}{}
}

// Len returns the number of distinct fingerprints recorded.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
