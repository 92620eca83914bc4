// Package state implements the process-wide conversation-state store: a
// concurrent map from tool-call identifier to the metadata needed to
// translate a later tool_result back into a function_response.
//
// Grounded on the teacher's internal/cache/signature_cache.go (sync.Map of
// per-group caches with a ticker-driven background sweep), simplified to a
// single flat map guarded by one sync.RWMutex since this store has no
// per-model grouping need.
package state

import (
	"sync"
	"time"
)

// Metadata is what the store remembers for one tool-call id.
type Metadata struct {
	FunctionName string
	ThoughtToken string
	LastUsedAt   time.Time
}

type entry struct {
	functionName string
	thoughtToken string
	lastUsedAt   time.Time
}

// Store is the process-wide tool-call identifier map described in spec §4.2.
type Store struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	cleanupOnce sync.Once
	stopCleanup chan struct{}
}

// New creates a Store with the given idle TTL. A TTL of zero or less
// disables expiry (entries live for the process lifetime).
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// RegisterToolUse inserts or overwrites the mapping for id. It takes the
// store-wide write lock for the duration of a single map write, so readers
// and writers of other keys wait for that write to finish.
func (s *Store) RegisterToolUse(id, functionName, thoughtToken string) {
	s.mu.Lock()
	s.entries[id] = entry{
		functionName: functionName,
		thoughtToken: thoughtToken,
		lastUsedAt:   time.Now(),
	}
	s.mu.Unlock()
	s.startCleanupOnce()
}

// GetMetadata returns the metadata for id, if present and not expired, and
// touches last_used_at. A miss returns (Metadata{}, false); it never errors.
func (s *Store) GetMetadata(id string) (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Metadata{}, false
	}
	if s.expired(e) {
		delete(s.entries, id)
		return Metadata{}, false
	}
	e.lastUsedAt = time.Now()
	s.entries[id] = e
	return Metadata{FunctionName: e.functionName, ThoughtToken: e.thoughtToken, LastUsedAt: e.lastUsedAt}, true
}

func (s *Store) expired(e entry) bool {
	if s.ttl <= 0 {
		return false
	}
	return time.Since(e.lastUsedAt) > s.ttl
}

// ExpireIdle removes every entry whose last_used_at is older than the TTL,
// as of now. Called opportunistically before each translation and from the
// background sweep.
func (s *Store) ExpireIdle(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if now.Sub(e.lastUsedAt) > s.ttl {
			delete(s.entries, id)
		}
	}
}

// startCleanupOnce lazily starts a background ticker that periodically
// sweeps idle entries, mirroring the teacher's sync.Once-guarded cleanup
// goroutine in signature_cache.go. It is harmless to call repeatedly.
func (s *Store) startCleanupOnce() {
	if s.ttl <= 0 {
		return
	}
	s.cleanupOnce.Do(func() {
		s.stopCleanup = make(chan struct{})
		go s.runCleanup()
	})
}

func (s *Store) runCleanup() {
	interval := s.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.ExpireIdle(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// Len reports the current entry count. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes every entry. Test helper.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
}

// VerifyRoundTrip reports whether id is present and, if so, whether its
// recorded function name matches want. Carried over from original_source's
// state.rs::verify_round_trip as a test helper for the round-trip invariant
// in spec.md §8.
func (s *Store) VerifyRoundTrip(id, want string) bool {
	meta, ok := s.GetMetadata(id)
	if !ok {
		return false
	}
	return meta.FunctionName == want
}
