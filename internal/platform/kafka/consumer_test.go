package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var fastRetry = RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func TestWithRetry_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	handler := func(_ context.Context, _ kafkago.Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	}

	err := WithRetry(handler, fastRetry, zap.NewNop())(context.Background(), kafkago.Message{Offset: 7})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	attempts := 0
	handler := func(_ context.Context, _ kafkago.Message) error {
		attempts++
		return errors.New("db down")
	}

	err := WithRetry(handler, fastRetry, zap.NewNop())(ctx, kafkago.Message{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, attempts, 1)
}
