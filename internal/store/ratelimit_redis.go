package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/ratelimiter/internal/ratelimit"
)

var _ ratelimit.Store = (*RateLimitRedisStore)(nil)

// RateLimitRedisStore is a Redis implementation of ratelimit.Store.
// Collections are sorted sets and every batch runs inside MULTI/EXEC.
type RateLimitRedisStore struct {
	client redis.UniversalClient
}

// NewRateLimitRedisStore creates a new Redis-backed rate limit store.
func NewRateLimitRedisStore(client redis.UniversalClient) *RateLimitRedisStore {
	return &RateLimitRedisStore{client: client}
}

// NewBatch begins a MULTI/EXEC transaction.
func (r *RateLimitRedisStore) NewBatch() ratelimit.Batch {
	return &redisBatch{pipe: r.client.TxPipeline()}
}

type redisBatch struct {
	pipe redis.Pipeliner
	cmds []*redis.IntCmd
}

func (b *redisBatch) stage(cmd *redis.IntCmd) ratelimit.Handle {
	b.cmds = append(b.cmds, cmd)

	return ratelimit.Handle(len(b.cmds) - 1)
}

// Commands are only queued here; the context passed to Exec governs the round-trip.
func (b *redisBatch) AddScored(key, member string, score float64) ratelimit.Handle {
	return b.stage(b.pipe.ZAdd(context.Background(), key, redis.Z{Score: score, Member: member}))
}

func (b *redisBatch) RemoveScoredRange(key string, minScore, maxScore float64) ratelimit.Handle {
	return b.stage(b.pipe.ZRemRangeByScore(context.Background(), key, formatScore(minScore), formatScore(maxScore)))
}

func (b *redisBatch) Count(key string) ratelimit.Handle {
	return b.stage(b.pipe.ZCard(context.Background(), key))
}

// Execute runs the transaction. Redis applies a MULTI/EXEC block all at once,
// so a transport failure before EXEC leaves the store untouched. A timeout or
// cancellation after the block was written is reported as indeterminate.
func (b *redisBatch) Execute(ctx context.Context) ([]int64, error) {
	if _, err := b.pipe.Exec(ctx); err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", ratelimit.ErrIndeterminate, err)
		}

		return nil, fmt.Errorf("%w: %w", ratelimit.ErrStoreUnavailable, err)
	}

	results := make([]int64, len(b.cmds))
	for i, cmd := range b.cmds {
		results[i] = cmd.Val()
	}

	return results, nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
