package limiter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolink/admit/limiter"
)

func TestConfig_ValidateAndPrepare(t *testing.T) {
	t.Parallel()

	t.Run("builds matcher in route order", func(t *testing.T) {
		cfg := limiter.Config{
			StorageType: limiter.StorageRedis,
			Default:     &limiter.LimitConfig{Window: 10, Max: 100},
			Routes: []limiter.RouteConfig{
				{Path: "/greeting/[a-z]+", Method: "POST", Regex: true, Window: 5, Max: 1},
				{Path: "/greeting/.*", Regex: true, Window: 1, Max: 5},
			},
		}

		m, err := cfg.ValidateAndPrepare()
		require.NoError(t, err)
		assert.Equal(t, 2, m.Len())
		assert.Equal(t, limiter.Limit{Window: 10 * time.Second, Max: 100}, m.Default())
		assert.Equal(t, limiter.Limit{Window: 5 * time.Second, Max: 1}, m.Resolve("POST", "/greeting/alice"))
		assert.Equal(t, limiter.Limit{Window: time.Second, Max: 5}, m.Resolve("GET", "/greeting/alice"))
		assert.Equal(t, limiter.Limit{Window: 10 * time.Second, Max: 100}, m.Resolve("GET", "/"))
	})

	t.Run("defaults storage type and default limit", func(t *testing.T) {
		cfg := limiter.Config{}

		m, err := cfg.ValidateAndPrepare()
		require.NoError(t, err)
		assert.Equal(t, limiter.StorageMemory, cfg.StorageType)
		assert.Equal(t, limiter.DefaultLimit(), m.Default())
		assert.Equal(t, 0, m.Len())
	})

	t.Run("duplicate routes are accepted", func(t *testing.T) {
		cfg := limiter.Config{
			Routes: []limiter.RouteConfig{
				{Path: "/a", Window: 1, Max: 1},
				{Path: "/a", Window: 1, Max: 9},
			},
		}

		m, err := cfg.ValidateAndPrepare()
		require.NoError(t, err)
		assert.Equal(t, int64(1), m.Resolve("GET", "/a").Max)
	})

	t.Run("rejects unknown storage type", func(t *testing.T) {
		cfg := limiter.Config{StorageType: "memcached"}
		_, err := cfg.ValidateAndPrepare()
		assert.ErrorIs(t, err, limiter.ErrInvalidStorage)
	})

	t.Run("rejects invalid default", func(t *testing.T) {
		cfg := limiter.Config{Default: &limiter.LimitConfig{Window: 0, Max: 1}}
		_, err := cfg.ValidateAndPrepare()
		assert.ErrorIs(t, err, limiter.ErrInvalidLimit)
	})

	t.Run("rejects invalid regex", func(t *testing.T) {
		cfg := limiter.Config{
			Routes: []limiter.RouteConfig{{Path: "/users/(", Regex: true, Window: 1, Max: 1}},
		}
		_, err := cfg.ValidateAndPrepare()
		assert.ErrorIs(t, err, limiter.ErrInvalidRoute)
	})

	t.Run("rejects negative max", func(t *testing.T) {
		cfg := limiter.Config{
			Routes: []limiter.RouteConfig{{Path: "/users", Window: 1, Max: -3}},
		}
		_, err := cfg.ValidateAndPrepare()
		assert.ErrorIs(t, err, limiter.ErrInvalidLimit)
	})
}
