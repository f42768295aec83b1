package limiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/toolink/admit/redlock"
)

// LockingRedisStore implements Store on plain Redis GET/SET for deployments
// that disable scripting for clients. Every check takes a redlock lock on the
// bucket, so updates for one key are serialized across processes. Buckets are
// stored as JSON and expire with their window.
type LockingRedisStore struct {
	client   redis.Cmdable
	prefix   string
	now      func() time.Time
	lockOpts []redlock.Option
}

// LockOption configures a LockingRedisStore.
type LockOption func(*LockingRedisStore)

// WithLockKeyPrefix sets the prefix of bucket and lock keys.
func WithLockKeyPrefix(prefix string) LockOption {
	return func(s *LockingRedisStore) {
		s.prefix = prefix
	}
}

// WithLockClock replaces time.Now as the source of window start times.
func WithLockClock(now func() time.Time) LockOption {
	return func(s *LockingRedisStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLockOptions passes options to every redlock.Locker the store creates.
func WithLockOptions(opts ...redlock.Option) LockOption {
	return func(s *LockingRedisStore) {
		s.lockOpts = append(s.lockOpts, opts...)
	}
}

// NewLockingRedisStore creates a new lock-based Redis store.
func NewLockingRedisStore(client redis.Cmdable, opts ...LockOption) *LockingRedisStore {
	s := &LockingRedisStore{
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
func (s *LockingRedisStore) CheckAndUpdate(ctx context.Context, key string, limit Limit) (res Result, err error) {
	res.Limit = limit

	locker, err := redlock.NewLocker(s.client, s.prefix+"lock:"+key, s.lockOpts...)
	if err != nil {
		return res, verificationError(key, err)
	}
	if err := locker.Lock(ctx); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to lock bucket")
		return res, verificationError(key, fmt.Errorf("lock bucket: %w", err))
	}
	defer func() {
		// release even if the request context is already done
		if uerr := locker.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			log.Warn().Err(uerr).Str("key", key).Msg("failed to unlock bucket")
		}
	}()

	bucketKey := s.prefix + key
	current, err := s.load(ctx, bucketKey)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to load bucket")
		return res, verificationError(key, err)
	}

	now := s.now()
	next, res := take(current, now, limit)

	data, err := json.Marshal(next)
	if err != nil {
		return Result{Limit: limit}, verificationError(key, fmt.Errorf("encode bucket: %w", err))
	}
	ttl := next.StartedAt.Add(limit.Window).Sub(now)
	if err := s.client.Set(ctx, bucketKey, data, ttl).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to store bucket")
		return Result{Limit: limit}, verificationError(key, fmt.Errorf("store bucket: %w", err))
	}
	return res, nil
}

// load returns the stored bucket, or nil if there is none.
func (s *LockingRedisStore) load(ctx context.Context, bucketKey string) (*Bucket, error) {
	data, err := s.client.Get(ctx, bucketKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket: %w", err)
	}

	var b Bucket
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bucket: %w", err)
	}
	return &b, nil
}
