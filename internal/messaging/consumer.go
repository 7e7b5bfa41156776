package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// ErrDiscard marks a failure that redelivery cannot fix. Messages failing with
// it are acked and dropped.
var ErrDiscard = errors.New("event discarded")

// Discard wraps err so the consumer drops the message instead of redelivering it.
func Discard(err error) error {
	return fmt.Errorf("%w: %w", ErrDiscard, err)
}

// Validator is implemented by events that check their own invariants after decoding.
type Validator interface {
	Validate() error
}

// Handler processes a single event.
type Handler[T any] func(ctx context.Context, event *T) error

// Consumer subscribes to a topic and processes messages with a typed handler.
//
// A message is nacked for redelivery when the handler fails. It is acked and
// dropped when it cannot be decoded, when the event fails validation, or when
// the handler returns an error wrapping ErrDiscard.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewConsumer creates a new generic consumer for a specific event type.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
) *Consumer[T] {
	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger.With(zap.String("topic", topic)),
		done:       make(chan struct{}),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes and processes messages in the background until ctx is
// done or the subscription closes.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		c.cancel()
		close(c.done)

		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	go func() {
		defer close(c.done)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				c.settle(msg, c.process(ctx, msg.Payload))
			}
		}
	}()

	return nil
}

func (c *Consumer[T]) process(ctx context.Context, payload []byte) error {
	var event T
	if err := json.Unmarshal(payload, &event); err != nil {
		return Discard(fmt.Errorf("decode: %w", err))
	}

	if v, ok := any(&event).(Validator); ok {
		if err := v.Validate(); err != nil {
			return Discard(err)
		}
	}

	return c.handler(ctx, &event)
}

func (c *Consumer[T]) settle(msg *message.Message, err error) {
	switch {
	case err == nil:
		msg.Ack()
		c.logger.Debug("processed event", zap.String("uuid", msg.UUID))
	case errors.Is(err, ErrDiscard):
		msg.Ack()
		c.logger.Error("dropping event", zap.String("uuid", msg.UUID), zap.Error(err))
	default:
		msg.Nack()
		c.logger.Warn("event handler failed, redelivering", zap.String("uuid", msg.UUID), zap.Error(err))
	}
}

// Shutdown stops the consumer and waits for the in-flight message to settle.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
	}

	<-c.done

	return nil
}
