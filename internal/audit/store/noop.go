package store

import (
	"context"

	"github.com/serroba/ratelimiter/internal/audit"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of audit.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op audit store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveLimitExceeded(_ context.Context, event *audit.LimitExceededEvent) error {
	n.logger.Info("limit exceeded event received",
		zap.String("identity", event.Identity),
		zap.String("scope", event.Scope),
		zap.Int64("count", event.Count),
		zap.Int64("limit", event.Limit),
		zap.Int64("windowMs", event.WindowMs),
		zap.Time("occurredAt", event.OccurredAt),
	)

	return nil
}
