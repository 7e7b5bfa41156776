package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/serroba/ratelimiter/internal/ratelimit"
)

var _ ratelimit.Store = (*RateLimitMemoryStore)(nil)

type scoredMember struct {
	member string
	score  float64
}

func compareScored(a, b scoredMember) int {
	if c := cmp.Compare(a.score, b.score); c != 0 {
		return c
	}

	return cmp.Compare(a.member, b.member)
}

// sortedSet keeps members ordered by score, then member.
type sortedSet struct {
	entries []scoredMember
	scores  map[string]float64
}

func newSortedSet() *sortedSet {
	return &sortedSet{scores: make(map[string]float64)}
}

func (s *sortedSet) add(member string, score float64) int64 {
	added := int64(1)

	if old, ok := s.scores[member]; ok {
		if old == score {
			return 0
		}

		i, _ := slices.BinarySearchFunc(s.entries, scoredMember{member, old}, compareScored)
		s.entries = slices.Delete(s.entries, i, i+1)
		added = 0
	}

	entry := scoredMember{member: member, score: score}
	i, _ := slices.BinarySearchFunc(s.entries, entry, compareScored)
	s.entries = slices.Insert(s.entries, i, entry)
	s.scores[member] = score

	return added
}

func (s *sortedSet) removeRange(minScore, maxScore float64) int64 {
	if minScore > maxScore {
		return 0
	}

	lo, _ := slices.BinarySearchFunc(s.entries, minScore, func(e scoredMember, t float64) int {
		return cmp.Compare(e.score, t)
	})

	hi := lo
	for hi < len(s.entries) && s.entries[hi].score <= maxScore {
		delete(s.scores, s.entries[hi].member)
		hi++
	}

	s.entries = slices.Delete(s.entries, lo, hi)

	return int64(hi - lo)
}

// RateLimitMemoryStore is an in-memory implementation of ratelimit.Store.
// A single mutex serializes batches, so each batch is atomic.
type RateLimitMemoryStore struct {
	mu   sync.Mutex
	sets map[string]*sortedSet
}

// NewRateLimitMemoryStore creates a new in-memory rate limit store.
func NewRateLimitMemoryStore() *RateLimitMemoryStore {
	return &RateLimitMemoryStore{
		sets: make(map[string]*sortedSet),
	}
}

// NewBatch begins a batch against the store.
func (s *RateLimitMemoryStore) NewBatch() ratelimit.Batch {
	return &memoryBatch{store: s}
}

// Members returns the members stored at key in score order. Nothing in the
// service reads it; tests use it to inspect what a batch left behind.
func (s *RateLimitMemoryStore) Members(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		return nil
	}

	members := make([]string, 0, len(set.entries))
	for _, e := range set.entries {
		members = append(members, e.member)
	}

	return members
}

type memoryOp func(sets map[string]*sortedSet) int64

type memoryBatch struct {
	store *RateLimitMemoryStore
	ops   []memoryOp
}

func (b *memoryBatch) stage(op memoryOp) ratelimit.Handle {
	b.ops = append(b.ops, op)

	return ratelimit.Handle(len(b.ops) - 1)
}

func (b *memoryBatch) AddScored(key, member string, score float64) ratelimit.Handle {
	return b.stage(func(sets map[string]*sortedSet) int64 {
		set, ok := sets[key]
		if !ok {
			set = newSortedSet()
			sets[key] = set
		}

		return set.add(member, score)
	})
}

func (b *memoryBatch) RemoveScoredRange(key string, minScore, maxScore float64) ratelimit.Handle {
	return b.stage(func(sets map[string]*sortedSet) int64 {
		set, ok := sets[key]
		if !ok {
			return 0
		}

		removed := set.removeRange(minScore, maxScore)
		if len(set.entries) == 0 {
			delete(sets, key)
		}

		return removed
	})
}

func (b *memoryBatch) Count(key string) ratelimit.Handle {
	return b.stage(func(sets map[string]*sortedSet) int64 {
		set, ok := sets[key]
		if !ok {
			return 0
		}

		return int64(len(set.entries))
	})
}

func (b *memoryBatch) Execute(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	results := make([]int64, len(b.ops))
	for i, op := range b.ops {
		results[i] = op(b.store.sets)
	}

	return results, nil
}
