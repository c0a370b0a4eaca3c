package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler processes one message. A nil return commits the offset.
type MessageHandler func(ctx context.Context, msg kafkago.Message) error

// RetryPolicy bounds the exponential wait between attempts at one message.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used by NewConsumer.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     30 * time.Second,
}

// WithRetry wraps handler so a failing message is retried in place until it
// succeeds or ctx ends. The returned handler fails only with ctx's error.
func WithRetry(handler MessageHandler, policy RetryPolicy, logger *zap.Logger) MessageHandler {
	return func(ctx context.Context, msg kafkago.Message) error {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = policy.InitialInterval
		b.MaxInterval = policy.MaxInterval
		b.MaxElapsedTime = 0

		attempt := func() error { return handler(ctx, msg) }
		notify := func(err error, wait time.Duration) {
			logger.Warn("message handler failed, retrying",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
		}
		return backoff.RetryNotify(attempt, backoff.WithContext(b, ctx), notify)
	}
}

// Consumer reads a single topic as part of a consumer group.
type Consumer struct {
	reader *kafkago.Reader
	topic  string
	retry  RetryPolicy
	logger *zap.Logger
}

// NewConsumer creates a Consumer for topic in the given group.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, topic: topic, retry: DefaultRetryPolicy, logger: logger}
}

// Consume fetches messages until ctx is cancelled. A failed message blocks the
// partition and is retried; its offset is committed only after handler succeeds,
// so a shutdown mid-retry leaves it for the next group member.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	handler = WithRetry(handler, c.retry, c.logger)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch message from %s: %w", c.topic, err)
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Info("stopped before message was handled",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("failed to commit offset",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// Close releases the reader and leaves the group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
