package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable represents a component that can be started and shutdown.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup runs consumers that share one subscriber. Consumers start in
// the order they were added and stop in reverse.
type ConsumerGroup struct {
	consumers  []Runnable
	started    int
	subscriber message.Subscriber
	logger     *zap.Logger
}

// NewConsumerGroup creates a new consumer group.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers a consumer to the group.
func (g *ConsumerGroup) Add(consumer Runnable) {
	g.consumers = append(g.consumers, consumer)
}

// Start starts every consumer. When one fails, the ones already running are
// stopped and the failure is returned.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for _, consumer := range g.consumers {
		if err := consumer.Start(ctx); err != nil {
			_ = g.stop()

			return fmt.Errorf("start %s: %w", describe(consumer), err)
		}

		g.started++
		g.logger.Info("consumer started", zap.String("consumer", describe(consumer)))
	}

	return nil
}

// Shutdown stops the running consumers, then closes the subscriber. Every
// error is returned.
func (g *ConsumerGroup) Shutdown() error {
	g.logger.Info("shutting down consumer group", zap.Int("running", g.started))

	return errors.Join(g.stop(), g.subscriber.Close())
}

func (g *ConsumerGroup) stop() error {
	var errs []error

	for ; g.started > 0; g.started-- {
		consumer := g.consumers[g.started-1]
		if err := consumer.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", describe(consumer), err))
		}
	}

	return errors.Join(errs...)
}

// describe names a consumer by its topic when it has one.
func describe(consumer Runnable) string {
	if t, ok := consumer.(interface{ Topic() string }); ok {
		return t.Topic()
	}

	return fmt.Sprintf("%T", consumer)
}
