package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryStore implements Store with an in-process map.
// A single mutex guards the whole key space; use ShardedMemoryStore when
// contention on that lock matters.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]entry
	now     func() time.Time
}

// entry keeps the window a bucket was accounted with so Prune can tell
// expired buckets apart without knowing the route table.
type entry struct {
	Bucket
	window time.Duration
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndUpdate implements Store.
func (s *MemoryStore) CheckAndUpdate(ctx context.Context, key string, limit Limit) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Limit: limit}, verificationError(key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var current *Bucket
	if e, ok := s.buckets[key]; ok {
		current = &e.Bucket
		if current.Expired(now, limit.Window) {
			log.Debug().Str("key", key).Time("started_at", current.StartedAt).Msg("bucket expired, starting new window")
		}
	} else {
		log.Debug().Str("key", key).Int64("max", limit.Max).Dur("window", limit.Window).Msg("first request, bucket created")
	}

	next, res := take(current, now, limit)
	s.buckets[key] = entry{Bucket: next, window: limit.Window}
	return res, nil
}

// Reset forgets the bucket for key.
func (s *MemoryStore) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
}

// Prune removes every bucket whose window is over and returns how many were
// removed. The next request for a pruned key starts a fresh window, exactly
// as if the bucket had expired. Nothing calls Prune in the background.
func (s *MemoryStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.buckets {
		if e.Expired(now, e.window) {
			delete(s.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Int("active", len(s.buckets)).Msg("expired buckets pruned")
	}
	return removed
}

// Len returns the number of buckets held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
