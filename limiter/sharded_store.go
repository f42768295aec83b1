package limiter

import (
	"context"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 16

// ShardedMemoryStore spreads keys over independent MemoryStores so requests
// for different keys rarely wait on the same lock. Each key always lands on
// the same shard, which keeps check-and-update atomic per key.
type ShardedMemoryStore struct {
	shards []*MemoryStore
}

// NewShardedMemoryStore creates a store with n shards (16 if n <= 0).
// The options are applied to every shard.
func NewShardedMemoryStore(n int, opts ...MemoryOption) *ShardedMemoryStore {
	if n <= 0 {
		n = defaultShards
	}
	s := &ShardedMemoryStore{shards: make([]*MemoryStore, n)}
	for i := range s.shards {
		s.shards[i] = NewMemoryStore(opts...)
	}
	return s
}

func (s *ShardedMemoryStore) shard(key string) *MemoryStore {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// CheckAndUpdate implements Store.
func (s *ShardedMemoryStore) CheckAndUpdate(ctx context.Context, key string, limit Limit) (Result, error) {
	return s.shard(key).CheckAndUpdate(ctx, key, limit)
}

// Reset forgets the bucket for key.
func (s *ShardedMemoryStore) Reset(key string) {
	s.shard(key).Reset(key)
}

// Prune removes expired buckets from every shard.
func (s *ShardedMemoryStore) Prune() int {
	removed := 0
	for _, shard := range s.shards {
		removed += shard.Prune()
	}
	return removed
}

// Len returns the number of buckets across all shards.
func (s *ShardedMemoryStore) Len() int {
	n := 0
	for _, shard := range s.shards {
		n += shard.Len()
	}
	return n
}

// Shards returns the number of shards.
func (s *ShardedMemoryStore) Shards() int { return len(s.shards) }
