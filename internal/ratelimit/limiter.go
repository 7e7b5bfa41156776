package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jaevor/go-nanoid"
)

// nonceLength keeps same-millisecond member collisions negligible.
const nonceLength = 12

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Hit records a hit for identity and reports whether it is within the limit.
	Hit(ctx context.Context, identity string) (Decision, error)
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

// Option configures a SlidingWindowLimiter.
type Option func(*SlidingWindowLimiter)

// WithClock replaces the wall clock used to timestamp hits.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) {
		l.now = now
	}
}

// WithNonce replaces the generator of the tie-breaker appended to each hit member.
func WithNonce(nonce func() string) Option {
	return func(l *SlidingWindowLimiter) {
		l.nonce = nonce
	}
}

// SlidingWindowLimiter implements rate limiting using a sliding window algorithm.
//
// Every hit is stored as its own member of an ordered collection scored by its
// timestamp in milliseconds. A hit adds its member, purges members at or before
// now-window and reads the remaining count, all in one atomic batch.
type SlidingWindowLimiter struct {
	store   Store
	key     KeyFunc
	maxHits int64
	window  time.Duration
	now     func() time.Time
	nonce   func() string
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(
	store Store, window time.Duration, maxHits int64, key KeyFunc, opts ...Option,
) (*SlidingWindowLimiter, error) {
	switch {
	case store == nil:
		return nil, ErrNilStore
	case key == nil:
		return nil, ErrNilKeyFunc
	case window < time.Millisecond, window%time.Millisecond != 0:
		return nil, ErrInvalidWindow
	case maxHits < 1:
		return nil, ErrInvalidMaxHits
	}

	l := &SlidingWindowLimiter{
		store:   store,
		key:     key,
		maxHits: maxHits,
		window:  window,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.nonce == nil {
		gen, err := nanoid.Standard(nonceLength)
		if err != nil {
			return nil, fmt.Errorf("nonce generator: %w", err)
		}

		l.nonce = gen
	}

	return l, nil
}

// Window returns the duration over which hits are counted.
func (l *SlidingWindowLimiter) Window() time.Duration {
	return l.window
}

// MaxHits returns the number of hits allowed within one window.
func (l *SlidingWindowLimiter) MaxHits() int64 {
	return l.maxHits
}

// Hit records a hit for identity and returns the resulting decision.
//
// A rejected hit stays recorded. On failure no decision is returned: errors
// wrap ErrStoreUnavailable when the batch failed, or ErrIndeterminate when it
// may have been applied.
func (l *SlidingWindowLimiter) Hit(ctx context.Context, identity string) (Decision, error) {
	if identity == "" {
		return Decision{}, ErrEmptyIdentity
	}

	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	now := l.now().UnixMilli()
	key := l.key(identity, l.window, l.maxHits)
	member := strconv.FormatInt(now, 10) + "-" + l.nonce()

	batch := l.store.NewBatch()
	batch.AddScored(key, member, float64(now))
	batch.RemoveScoredRange(key, 0, float64(now-l.window.Milliseconds()))
	count := batch.Count(key)

	results, err := batch.Execute(ctx)
	if err != nil {
		return Decision{}, classify(ctx, err)
	}

	if int(count) >= len(results) {
		return Decision{}, fmt.Errorf("%w: got %d results, want %d", ErrStoreUnavailable, len(results), count+1)
	}

	hits := results[count]

	outcome := OutcomeAllowed
	if hits > l.maxHits {
		outcome = OutcomeRateLimitExceeded
	}

	return Decision{
		Outcome: outcome,
		Count:   hits,
		Limit:   l.maxHits,
		Window:  l.window,
	}, nil
}

// classify maps a batch execution error onto the limiter's failure taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrIndeterminate) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrIndeterminate, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrIndeterminate, err)
	}

	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
