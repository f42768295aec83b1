package config

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/toolink/admit/limiter"
)

// NewStore builds the backend selected by cfg. The returned close function
// releases the backend's connections and is never nil.
func NewStore(ctx context.Context, cfg *Config) (limiter.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Limiter.StorageType {
	case limiter.StorageMemory, "":
		return limiter.NewMemoryStore(), noop, nil

	case limiter.StorageMemorySharded:
		return limiter.NewShardedMemoryStore(cfg.Env.MemoryShards), noop, nil

	case limiter.StorageRedis, limiter.StorageRedisLock:
		client, err := newRedisClient(ctx, cfg.Env)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Limiter.StorageType == limiter.StorageRedis {
			return limiter.NewRedisStore(client, limiter.WithKeyPrefix(cfg.Env.KeyPrefix)), client.Close, nil
		}
		return limiter.NewLockingRedisStore(client, limiter.WithLockKeyPrefix(cfg.Env.KeyPrefix)), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", limiter.ErrInvalidStorage, cfg.Limiter.StorageType)
	}
}

// newRedisClient connects and pings so an unreachable Redis fails startup.
func newRedisClient(ctx context.Context, e Env) (*redis.Client, error) {
	if e.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         e.RedisAddr,
		Password:     e.RedisPassword,
		DB:           e.RedisDB,
		DialTimeout:  e.RedisTimeout,
		ReadTimeout:  e.RedisTimeout,
		WriteTimeout: e.RedisTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, e.RedisTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info().Str("addr", e.RedisAddr).Int("db", e.RedisDB).Msg("connected to redis")
	return client, nil
}

// NewLimiter loads the configuration and builds the store and the limiter.
func NewLimiter(ctx context.Context) (*limiter.Limiter, func() error, error) {
	cfg, err := Load()
	if err != nil {
		return nil, nil, err
	}
	store, closeFn, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return limiter.New(cfg.Matcher, store), closeFn, nil
}
