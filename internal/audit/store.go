package audit

import "context"

// Store defines the interface for persisting rejection events.
type Store interface {
	SaveLimitExceeded(ctx context.Context, event *LimitExceededEvent) error
}
