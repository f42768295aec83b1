package limiter_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolink/admit/limiter"
)

// storeFactory builds a fresh store driven by clock.
type storeFactory func(t *testing.T, clock *fakeClock) limiter.Store

// testStoreContract checks the fixed window behaviour every backend must share.
func testStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("allows exactly max requests per window", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock)
		limit := limiter.Limit{Window: time.Second, Max: 5}

		for i := range 5 {
			res, err := store.CheckAndUpdate(ctx, "n-key", limit)
			require.NoError(t, err)
			assert.True(t, res.Allowed(), "request %d should be allowed", i+1)
			assert.Equal(t, int64(4-i), res.Remaining)
			assert.True(t, clock.Now().Add(time.Second).Equal(res.ResetAt), "unexpected reset time %s", res.ResetAt)
		}

		res, err := store.CheckAndUpdate(ctx, "n-key", limit)
		require.NoError(t, err)
		assert.False(t, res.Allowed())
		assert.Equal(t, int64(0), res.Remaining)
		assert.Equal(t, limit, res.Limit)
	})

	t.Run("zero max denies every request including the first", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock)
		limit := limiter.Limit{Window: time.Second, Max: 0}

		for range 3 {
			res, err := store.CheckAndUpdate(ctx, "zero-key", limit)
			require.NoError(t, err)
			assert.False(t, res.Allowed())
		}

		clock.Advance(2 * time.Second)
		res, err := store.CheckAndUpdate(ctx, "zero-key", limit)
		require.NoError(t, err)
		assert.False(t, res.Allowed())
	})

	t.Run("expired window resets to max minus one", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock)
		limit := limiter.Limit{Window: time.Second, Max: 3}

		for range 4 {
			_, err := store.CheckAndUpdate(ctx, "reset-key", limit)
			require.NoError(t, err)
		}

		clock.Advance(time.Second)
		res, err := store.CheckAndUpdate(ctx, "reset-key", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, int64(2), res.Remaining)
		assert.True(t, clock.Now().Add(time.Second).Equal(res.ResetAt), "unexpected reset time %s", res.ResetAt)
	})

	t.Run("window is not reset before it elapses", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock)
		limit := limiter.Limit{Window: time.Second, Max: 1}

		res, err := store.CheckAndUpdate(ctx, "early-key", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed())

		clock.Advance(999 * time.Millisecond)
		res, err = store.CheckAndUpdate(ctx, "early-key", limit)
		require.NoError(t, err)
		assert.False(t, res.Allowed())
	})

	t.Run("keys are independent", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock)
		limit := limiter.Limit{Window: time.Minute, Max: 1}

		res, err := store.CheckAndUpdate(ctx, "alice:/a", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed())

		res, err = store.CheckAndUpdate(ctx, "bob:/a", limit)
		require.NoError(t, err)
		assert.True(t, res.Allowed())

		res, err = store.CheckAndUpdate(ctx, "alice:/a", limit)
		require.NoError(t, err)
		assert.False(t, res.Allowed())
	})

	t.Run("concurrent callers never exceed max", func(t *testing.T) {
		clock := newFakeClock()
		store := newStore(t, clock)
		limit := limiter.Limit{Window: time.Minute, Max: 5}

		const callers = 20
		var allowed, denied atomic.Int64
		var wg sync.WaitGroup
		wg.Add(callers)
		for range callers {
			go func() {
				defer wg.Done()
				res, err := store.CheckAndUpdate(ctx, "race-key", limit)
				if !assert.NoError(t, err) {
					return
				}
				if res.Allowed() {
					allowed.Add(1)
				} else {
					denied.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(5), allowed.Load())
		assert.Equal(t, int64(callers-5), denied.Load())
	})
}
