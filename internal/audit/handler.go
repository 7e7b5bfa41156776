package audit

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/serroba/ratelimiter/internal/messaging"
	"go.uber.org/zap"
)

// NewHandler returns a consumer handler that persists rejection events to store.
// Rows the database refuses as invalid are discarded; every other failure is
// retried through redelivery.
func NewHandler(store Store, logger *zap.Logger) messaging.Handler[LimitExceededEvent] {
	return func(ctx context.Context, event *LimitExceededEvent) error {
		err := store.SaveLimitExceeded(ctx, event)
		if err == nil {
			return nil
		}

		logger.Error("failed to save limit exceeded event",
			zap.String("identity", event.Identity),
			zap.String("scope", event.Scope),
			zap.Error(err),
		)

		if isRejectedRow(err) {
			return messaging.Discard(err)
		}

		return err
	}
}

// isRejectedRow reports data exceptions (class 22) and integrity constraint
// violations (class 23), which fail the same way on every attempt.
func isRejectedRow(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}

	class := pgErr.Code[:2]

	return class == "22" || class == "23"
}

// NewConsumer creates a consumer of rejection events backed by store.
func NewConsumer(subscriber message.Subscriber, store Store, logger *zap.Logger) *messaging.Consumer[LimitExceededEvent] {
	return messaging.NewConsumer(subscriber, TopicLimitExceeded, NewHandler(store, logger), logger)
}
