package ratelimit

import "time"

// Outcome is the verdict of a single hit.
type Outcome int

const (
	// OutcomeAllowed means the hit is within the limit.
	OutcomeAllowed Outcome = iota + 1
	// OutcomeRateLimitExceeded means the hit was recorded but the identity is over quota.
	OutcomeRateLimitExceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeRateLimitExceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// Decision is the result of recording a hit.
type Decision struct {
	Outcome Outcome
	// Count is the number of hits in the window, including this one.
	Count  int64
	Limit  int64
	Window time.Duration
}

// Allowed reports whether the hit is within the limit.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// Remaining returns how many more hits fit in the current window.
func (d Decision) Remaining() int64 {
	if d.Count >= d.Limit {
		return 0
	}

	return d.Limit - d.Count
}

// Err returns ErrRateLimitExceeded for a rejected hit and nil otherwise.
func (d Decision) Err() error {
	if d.Outcome == OutcomeRateLimitExceeded {
		return ErrRateLimitExceeded
	}

	return nil
}
