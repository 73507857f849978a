package bucket

import (
	"context"
	"sync"
	"time"

	"formdesk/internal/ratelimit/models"
)

// InMemoryBucketStore is a sliding-window limiter local to one process. It is
// the default store and the fallback while the shared store is unavailable.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	timestamps []time.Time
}

type MemoryOption func(*InMemoryBucketStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryBucketStore) {
		s.now = now
	}
}

func NewInMemoryBucketStore(opts ...MemoryOption) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: make(map[string]*slidingWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow records a request against key when fewer than limit requests fell
// inside the trailing window.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sw := s.bucketLocked(key)
	sw.cleanup(now.Add(-window))

	if len(sw.timestamps) >= limit {
		return models.Denied(limit, sw.oldest(), now, window), nil
	}
	sw.timestamps = append(sw.timestamps, now)
	return models.Allowed(limit, len(sw.timestamps), sw.oldest(), now, window), nil
}

// cleanup drops timestamps at or before cutoff. Timestamps are appended in
// order, so the expired ones form a prefix.
func (sw *slidingWindow) cleanup(cutoff time.Time) {
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

func (sw *slidingWindow) oldest() time.Time {
	if len(sw.timestamps) == 0 {
		return time.Time{}
	}
	return sw.timestamps[0]
}

// Must be called with s.mu held.
func (s *InMemoryBucketStore) bucketLocked(key string) *slidingWindow {
	if sw := s.buckets[key]; sw != nil {
		return sw
	}
	sw := &slidingWindow{}
	s.buckets[key] = sw
	return sw
}
