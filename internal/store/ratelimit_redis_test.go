package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimiter/internal/ratelimit"
	"github.com/serroba/ratelimiter/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*miniredis.Miniredis, *store.RateLimitRedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	t.Cleanup(func() { _ = client.Close() })

	return mr, store.NewRateLimitRedisStore(client)
}

func TestRateLimitRedisStore(t *testing.T) {
	t.Run("adds purges and counts in one transaction", func(t *testing.T) {
		mr, s := newMiniredisStore(t)

		_, err := mr.ZAdd("key1", 0, "old")
		require.NoError(t, err)

		batch := s.NewBatch()
		add := batch.AddScored("key1", "new", 1500)
		remove := batch.RemoveScoredRange("key1", 0, 500)
		count := batch.Count("key1")

		results, err := batch.Execute(context.Background())

		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, int64(1), results[add])
		assert.Equal(t, int64(1), results[remove])
		assert.Equal(t, int64(1), results[count])

		members, err := mr.ZMembers("key1")
		require.NoError(t, err)
		assert.Equal(t, []string{"new"}, members)
	})

	t.Run("removes range inclusively", func(t *testing.T) {
		mr, s := newMiniredisStore(t)

		for member, score := range map[string]float64{"a": 0, "b": 100, "c": 200} {
			_, err := mr.ZAdd("key1", score, member)
			require.NoError(t, err)
		}

		batch := s.NewBatch()
		remove := batch.RemoveScoredRange("key1", 0, 100)

		results, err := batch.Execute(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(2), results[remove])
	})

	t.Run("reports store errors as unavailable", func(t *testing.T) {
		mr, s := newMiniredisStore(t)
		mr.SetError("LOADING server is loading")

		batch := s.NewBatch()
		batch.AddScored("key1", "a", 1)

		_, err := batch.Execute(context.Background())

		require.ErrorIs(t, err, ratelimit.ErrStoreUnavailable)

		mr.SetError("")

		batch = s.NewBatch()
		count := batch.Count("key1")

		results, err := batch.Execute(context.Background())
		require.NoError(t, err, "store recovers once the error clears")
		assert.Equal(t, int64(0), results[count])
	})

	t.Run("reports unreachable server as unavailable", func(t *testing.T) {
		mr, s := newMiniredisStore(t)
		mr.Close()

		batch := s.NewBatch()
		batch.Count("key1")

		_, err := batch.Execute(context.Background())

		assert.ErrorIs(t, err, ratelimit.ErrStoreUnavailable)
	})

	t.Run("reports cancellation as indeterminate", func(t *testing.T) {
		_, s := newMiniredisStore(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		batch := s.NewBatch()
		batch.Count("key1")

		_, err := batch.Execute(ctx)

		assert.ErrorIs(t, err, ratelimit.ErrIndeterminate)
	})
}
