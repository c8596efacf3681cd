package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	cache := setupTestCache(t)
	defer cache.Close()

	rl := NewRateLimiter(cache)
	ctx := context.Background()

	t.Run("allows requests under the limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(ctx, "test-rl-under", 3, time.Second)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("rejects requests once the limit is exceeded", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			ok, err := rl.Allow(ctx, "test-rl-over", 2, time.Second)
			require.NoError(t, err)
			assert.True(t, ok)
		}

		ok, err := rl.Allow(ctx, "test-rl-over", 2, time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("resets after the window expires", func(t *testing.T) {
		ok, err := rl.Allow(ctx, "test-rl-window", 1, 100*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = rl.Allow(ctx, "test-rl-window", 1, 100*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)

		time.Sleep(150 * time.Millisecond)

		ok, err = rl.Allow(ctx, "test-rl-window", 1, 100*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("tracks independent keys separately", func(t *testing.T) {
		ok, err := rl.Allow(ctx, "test-rl-key-a", 1, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = rl.Allow(ctx, "test-rl-key-b", 1, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
