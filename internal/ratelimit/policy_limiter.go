package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// LimitConfig is a single window/max pair.
type LimitConfig struct {
	Window time.Duration
	Max    int64
}

// Policy maps scopes to the limits enforced for them.
type Policy struct {
	Limits map[Scope][]LimitConfig
}

// LimitExceeded contains information about which limit was exceeded.
type LimitExceeded struct {
	Scope    Scope
	Decision Decision
}

type scopedLimiter struct {
	scope   Scope
	limiter *SlidingWindowLimiter
}

// PolicyLimiter enforces rate limits based on a policy and resolved scopes.
type PolicyLimiter struct {
	limiters map[Scope][]scopedLimiter
}

// NewPolicyLimiter creates a new policy-based rate limiter with one sliding
// window limiter per configured limit.
func NewPolicyLimiter(store Store, policy *Policy, key KeyFunc, opts ...Option) (*PolicyLimiter, error) {
	limiters := make(map[Scope][]scopedLimiter, len(policy.Limits))

	for scope, limits := range policy.Limits {
		for _, limit := range limits {
			l, err := NewSlidingWindowLimiter(store, limit.Window, limit.Max, key, opts...)
			if err != nil {
				return nil, fmt.Errorf("scope %s: %w", scope, err)
			}

			limiters[scope] = append(limiters[scope], scopedLimiter{scope: scope, limiter: l})
		}
	}

	return &PolicyLimiter{limiters: limiters}, nil
}

// Has reports whether the policy defines limits for scope.
func (l *PolicyLimiter) Has(scope Scope) bool {
	return len(l.limiters[scope]) > 0
}

// Hit records a hit for identity against every limit of the given scopes.
//
// It stops at the first exceeded limit and returns it along with its scope.
// When every limit allows the hit, the decision with the fewest remaining hits
// is returned. Scopes without limits are skipped.
func (l *PolicyLimiter) Hit(ctx context.Context, identity string, scopes []Scope) (Decision, *LimitExceeded, error) {
	var tightest *Decision

	for _, scope := range scopes {
		for _, sl := range l.limiters[scope] {
			// Scope namespaces the identity so equal configs in different scopes stay independent
			decision, err := sl.limiter.Hit(ctx, identity+":"+string(scope))
			if err != nil {
				return Decision{}, nil, err
			}

			if !decision.Allowed() {
				return decision, &LimitExceeded{Scope: scope, Decision: decision}, nil
			}

			if tightest == nil || decision.Remaining() < tightest.Remaining() {
				tightest = &decision
			}
		}
	}

	if tightest == nil {
		return Decision{Outcome: OutcomeAllowed}, nil, nil
	}

	return *tightest, nil, nil
}
