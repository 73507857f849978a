// Package lockout counts failed admin logins per client within a fixed window
// that opens at the first failure.
package lockout

import (
	"context"
	"sync"
	"time"
)

// Store counts failures per key. Counts reset once the window that opened at
// the first failure has elapsed.
type Store interface {
	Failures(ctx context.Context, key string, now time.Time) (int, error)
	RecordFailure(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
	Clear(ctx context.Context, key string) error
}

type entry struct {
	count     int
	expiresAt time.Time
}

// InMemoryStore keeps counters in process. Expired entries are dropped lazily.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]entry)}
}

func (s *InMemoryStore) Failures(_ context.Context, key string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key, now)
	if !ok {
		return 0, nil
	}
	return e.count, nil
}

func (s *InMemoryStore) RecordFailure(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key, now)
	if !ok {
		e = entry{expiresAt: now.Add(window)}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *InMemoryStore) liveLocked(key string, now time.Time) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}
