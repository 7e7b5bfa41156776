package audit

import (
	"errors"
	"fmt"
	"time"
)

// TopicLimitExceeded is the topic rejection events are published on.
const TopicLimitExceeded = "ratelimit.exceeded"

// LimitExceededEvent represents a request rejected by the rate limiter.
type LimitExceededEvent struct {
	Identity   string    `json:"identity"`
	Scope      string    `json:"scope"`
	Count      int64     `json:"count"`
	Limit      int64     `json:"limit"`
	WindowMs   int64     `json:"windowMs"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	ClientIP   string    `json:"clientIp,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Validate reports whether the event describes a rejection that can be stored.
func (e *LimitExceededEvent) Validate() error {
	switch {
	case e.Identity == "":
		return errors.New("identity is required")
	case e.Scope == "":
		return errors.New("scope is required")
	case e.Limit < 1 || e.WindowMs < 1:
		return fmt.Errorf("invalid limit %d per %dms", e.Limit, e.WindowMs)
	case e.Count <= e.Limit:
		return fmt.Errorf("count %d is within limit %d", e.Count, e.Limit)
	case e.OccurredAt.IsZero():
		return errors.New("occurredAt is required")
	}

	return nil
}
