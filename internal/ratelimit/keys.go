package ratelimit

import (
	"fmt"
	"time"
)

// KeyFunc derives the storage key for an (identity, window, max hits) triple.
// It must be deterministic and must not map distinct triples to the same key.
type KeyFunc func(identity string, window time.Duration, maxHits int64) string

// KeySchema names rate limiter keys under a common prefix.
type KeySchema struct {
	Prefix string
}

// NewKeySchema creates a key schema rooted at prefix.
func NewKeySchema(prefix string) KeySchema {
	return KeySchema{Prefix: prefix}
}

// SlidingWindow returns the key of the sliding window collection for identity.
// The numeric parts come before the identity so that no identity can forge
// another triple's key. The window is written in milliseconds, which is exact
// for every window a SlidingWindowLimiter accepts.
func (s KeySchema) SlidingWindow(identity string, window time.Duration, maxHits int64) string {
	return fmt.Sprintf("%s:limiter:sliding:%d:%d:%s", s.Prefix, window.Milliseconds(), maxHits, identity)
}
