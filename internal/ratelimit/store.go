package ratelimit

import "context"

// Store defines the interface for rate limit data storage.
//
// A store keeps one ordered, score-addressable collection per key and applies
// batches of operations atomically.
type Store interface {
	// NewBatch begins a set of operations submitted as one atomic unit.
	NewBatch() Batch
}

// Handle identifies the result of a staged operation within a batch.
type Handle int

// Batch stages operations against a Store. Nothing is applied until Execute.
type Batch interface {
	// AddScored stages insertion of member with the given score at key.
	AddScored(key, member string, score float64) Handle
	// RemoveScoredRange stages removal of every member at key whose score lies
	// in [minScore, maxScore].
	RemoveScoredRange(key string, minScore, maxScore float64) Handle
	// Count stages a cardinality read of the collection at key.
	Count(key string) Handle
	// Execute applies all staged operations atomically and returns one result
	// per operation, in submission order.
	Execute(ctx context.Context) ([]int64, error)
}
