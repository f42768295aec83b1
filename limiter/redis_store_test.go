package limiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolink/admit/limiter"
)

func TestRedisStore_Contract(t *testing.T) {
	t.Parallel()

	testStoreContract(t, func(t *testing.T, clock *fakeClock) limiter.Store {
		_, client := newTestRedis(t)
		return limiter.NewRedisStore(client, limiter.WithRedisClock(clock.Now))
	})
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("bucket key expires with its window", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := limiter.NewRedisStore(client)
		limit := limiter.Limit{Window: 5 * time.Second, Max: 2}

		res, err := store.CheckAndUpdate(ctx, "alice:/greeting/alice", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed())

		key := limiter.DefaultKeyPrefix + "alice:/greeting/alice"
		assert.True(t, mr.Exists(key))
		assert.Equal(t, 5*time.Second, mr.TTL(key))
		assert.Equal(t, "1", mr.HGet(key, "remaining"))

		// a second request in the same window does not extend the ttl
		mr.FastForward(2 * time.Second)
		_, err = store.CheckAndUpdate(ctx, "alice:/greeting/alice", limit)
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, mr.TTL(key))

		mr.FastForward(3 * time.Second)
		assert.False(t, mr.Exists(key))

		// an evicted bucket is a first touch again
		res, err = store.CheckAndUpdate(ctx, "alice:/greeting/alice", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, int64(1), res.Remaining)
	})

	t.Run("custom key prefix", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := limiter.NewRedisStore(client, limiter.WithKeyPrefix("admit:"))

		_, err := store.CheckAndUpdate(ctx, "k", limiter.DefaultLimit())
		require.NoError(t, err)
		assert.True(t, mr.Exists("admit:k"))
		assert.False(t, mr.Exists(limiter.DefaultKeyPrefix+"k"))
	})

	t.Run("unreachable redis is a verification error", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := limiter.NewRedisStore(client)
		mr.Close()

		_, err := store.CheckAndUpdate(ctx, "down", limiter.DefaultLimit())
		var ve *limiter.VerificationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "down", ve.Key)
	})

	t.Run("wrong type at key is a verification error", func(t *testing.T) {
		mr, client := newTestRedis(t)
		store := limiter.NewRedisStore(client)
		require.NoError(t, mr.Set(limiter.DefaultKeyPrefix+"str", "not a hash"))

		_, err := store.CheckAndUpdate(ctx, "str", limiter.DefaultLimit())
		var ve *limiter.VerificationError
		assert.ErrorAs(t, err, &ve)
	})
}
