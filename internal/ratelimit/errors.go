package ratelimit

import "errors"

var (
	// ErrRateLimitExceeded is returned by Decision.Err when the identity is over quota.
	// The hit that triggered it is still counted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrStoreUnavailable means the batch could not be submitted or executed.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrIndeterminate means the batch may or may not have been applied.
	ErrIndeterminate = errors.New("rate limit outcome indeterminate")

	ErrInvalidWindow  = errors.New("window must be a positive whole number of milliseconds")
	ErrInvalidMaxHits = errors.New("max hits must be at least 1")
	ErrEmptyIdentity  = errors.New("identity must not be empty")
	ErrNilStore       = errors.New("store must not be nil")
	ErrNilKeyFunc     = errors.New("key func must not be nil")
)
