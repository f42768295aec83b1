// Package redlock provides a single-instance Redis lock (SET NX PX with a
// random token, released by compare-and-delete). It serializes
// read-modify-write sequences on Redis keys when Lua scripting is not an
// option for the caller.
package redlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTTL bounds how long a crashed holder can keep the lock.
	DefaultTTL = time.Second
	// DefaultRetryDelay is the wait between attempts in Lock.
	DefaultRetryDelay = 10 * time.Millisecond
	// DefaultMaxRetries caps attempts in Lock. 0 means retry until the context ends.
	DefaultMaxRetries = 100
)

var (
	// ErrLockNotAcquired is returned by TryLock when another holder owns the key.
	ErrLockNotAcquired = errors.New("redlock: lock not acquired")
	// ErrUnlockFailed is returned when the lock is not held by this Locker any more.
	ErrUnlockFailed = errors.New("redlock: failed to unlock")
	// ErrLockWaitTimeout is returned when the context ends while Lock is waiting.
	ErrLockWaitTimeout = errors.New("redlock: waiting for lock timed out or context cancelled")
	// ErrLockMaxRetriesExceeded is returned when Lock runs out of attempts.
	ErrLockMaxRetriesExceeded = errors.New("redlock: maximum lock retries exceeded")
	// ErrInvalidOption is returned by NewLocker for unusable settings.
	ErrInvalidOption = errors.New("redlock: invalid option")
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

var release = redis.NewScript(releaseScript)

// Locker guards one Redis key. A Locker holds at most one lock at a time and
// is not meant to be shared between goroutines; create one per critical section.
type Locker struct {
	client     redis.Cmdable
	key        string
	token      string // set while the lock is held
	ttl        time.Duration
	retryDelay time.Duration
	maxRetries int
}

// Option configures a Locker.
type Option func(*Locker) error

// WithTTL sets how long the lock lives if it is never released.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidOption, ttl)
		}
		l.ttl = ttl
		return nil
	}
}

// WithRetryDelay sets the wait between attempts in Lock.
func WithRetryDelay(delay time.Duration) Option {
	return func(l *Locker) error {
		if delay <= 0 {
			return fmt.Errorf("%w: retry delay must be positive, got %s", ErrInvalidOption, delay)
		}
		l.retryDelay = delay
		return nil
	}
}

// WithMaxRetries caps the number of retries in Lock. 0 retries until the context ends.
func WithMaxRetries(retries int) Option {
	return func(l *Locker) error {
		if retries < 0 {
			return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidOption, retries)
		}
		l.maxRetries = retries
		return nil
	}
}

// NewLocker creates a Locker for key.
func NewLocker(client redis.Cmdable, key string, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrInvalidOption)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidOption)
	}

	l := &Locker{
		client:     client,
		key:        key,
		ttl:        DefaultTTL,
		retryDelay: DefaultRetryDelay,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// acquire runs one SET NX attempt and returns the token on success.
func (l *Locker) acquire(ctx context.Context) (string, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", ErrLockWaitTimeout
		}
		log.Error().Err(err).Str("key", l.key).Msg("lock setnx failed")
		return "", err
	}
	if !ok {
		return "", ErrLockNotAcquired
	}
	return token, nil
}

// TryLock makes a single attempt to take the lock.
func (l *Locker) TryLock(ctx context.Context) error {
	token, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	l.token = token
	log.Trace().Str("key", l.key).Msg("lock acquired")
	return nil
}

// Lock takes the lock, retrying every retry delay until it succeeds, the
// context ends (ErrLockWaitTimeout) or the retries run out
// (ErrLockMaxRetriesExceeded). Redis errors are returned as they are.
func (l *Locker) Lock(ctx context.Context) error {
	err := l.TryLock(ctx)
	if !errors.Is(err, ErrLockNotAcquired) {
		return err
	}

	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for retries := 1; ; retries++ {
		select {
		case <-ctx.Done():
			log.Warn().Err(ctx.Err()).Str("key", l.key).Int("retries", retries-1).Msg("gave up waiting for lock")
			return ErrLockWaitTimeout
		case <-ticker.C:
		}

		err := l.TryLock(ctx)
		if !errors.Is(err, ErrLockNotAcquired) {
			return err
		}
		if l.maxRetries > 0 && retries >= l.maxRetries {
			log.Warn().Str("key", l.key).Int("retries", retries).Msg("lock retries exhausted")
			return ErrLockMaxRetriesExceeded
		}
	}
}

// Unlock releases the lock if this Locker still holds it. A lock that expired
// and was taken by someone else is left alone and ErrUnlockFailed returned.
func (l *Locker) Unlock(ctx context.Context) error {
	if l.token == "" {
		return ErrUnlockFailed
	}
	token := l.token
	l.token = ""

	n, err := release.Run(ctx, l.client, []string{l.key}, token).Int64()
	if err != nil {
		log.Error().Err(err).Str("key", l.key).Msg("lock release script failed")
		return err
	}
	if n != 1 {
		log.Warn().Str("key", l.key).Msg("lock expired before release")
		return ErrUnlockFailed
	}
	log.Trace().Str("key", l.key).Msg("lock released")
	return nil
}

// Key returns the locked Redis key.
func (l *Locker) Key() string { return l.key }

// Token returns the token of the held lock, or "" when not locked.
func (l *Locker) Token() string { return l.token }
