package limiter

import (
	"context"
	_ "embed" // needed for go:embed
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

//go:embed fixed_window.lua
var fixedWindowScript string

var redisScript = redis.NewScript(fixedWindowScript)

// DefaultKeyPrefix namespaces bucket keys in Redis.
const DefaultKeyPrefix = "ratelimit:"

// RedisStore implements Store on Redis. The whole read-check-update runs in
// one Lua script, so it is atomic per key across every process sharing the
// Redis. Each bucket key expires together with its window.
type RedisStore struct {
	client redis.Cmdable // Cmdable keeps ClusterClient, Ring etc. usable
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the prefix of every bucket key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisClock replaces time.Now as the source of window start times.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStore creates a new Redis store on a pre-configured client.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndUpdate implements Store.
func (s *RedisStore) CheckAndUpdate(ctx context.Context, key string, limit Limit) (Result, error) {
	now := s.now()
	keys := []string{s.prefix + key}
	args := []any{
		limit.Max,                   // max requests
		limit.Window.Milliseconds(), // window
		now.UnixMilli(),             // now
	}

	raw, err := redisScript.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("redis fixed window script failed")
		return Result{Limit: limit}, verificationError(key, fmt.Errorf("redis script: %w", err))
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		log.Error().Str("key", key).Interface("result", raw).Msg("redis fixed window script returned unexpected result")
		return Result{Limit: limit}, verificationError(key, fmt.Errorf("unexpected script result %T", raw))
	}
	allowed, ok1 := values[0].(int64)
	remaining, ok2 := values[1].(int64)
	started, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		log.Error().Str("key", key).Interface("result", values).Msg("redis fixed window script returned non-integer values")
		return Result{Limit: limit}, verificationError(key, fmt.Errorf("unexpected script result %v", values))
	}

	res := Result{
		Decision:  Deny,
		Limit:     limit,
		Remaining: max(remaining, 0),
		ResetAt:   time.UnixMilli(started).Add(limit.Window),
	}
	if allowed == 1 {
		res.Decision = Allow
	}
	return res, nil
}
