package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/staysure/service-reservation/internal/application"
	"github.com/staysure/service-reservation/internal/contracts"
	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
	"github.com/staysure/service-reservation/internal/platform/domain"
	"github.com/staysure/service-reservation/internal/platform/kafka"
)

type call struct {
	method    string
	bookingID uint64
	escrowRef string
	target    bookingDomain.BookingStatus
	actor     bookingDomain.Actor
}

// fakeEngine returns each of failFirst once, in order, then err on every call.
type fakeEngine struct {
	calls     []call
	applied   []call
	failFirst []error
	err       error
}

func (f *fakeEngine) outcome(c call) error {
	f.calls = append(f.calls, c)
	err := f.err
	if len(f.failFirst) > 0 {
		err, f.failFirst = f.failFirst[0], f.failFirst[1:]
	}
	if err == nil {
		f.applied = append(f.applied, c)
	}
	return err
}

func (f *fakeEngine) SetEscrowID(_ context.Context, bookingID uint64, escrowRef string, actor bookingDomain.Actor) (*application.BookingDTO, error) {
	err := f.outcome(call{method: "SetEscrowID", bookingID: bookingID, escrowRef: escrowRef, actor: actor})
	return &application.BookingDTO{ID: bookingID}, err
}

func (f *fakeEngine) UpdateStatus(_ context.Context, bookingID uint64, target bookingDomain.BookingStatus, actor bookingDomain.Actor) (*application.BookingDTO, error) {
	err := f.outcome(call{method: "UpdateStatus", bookingID: bookingID, target: target, actor: actor})
	return &application.BookingDTO{ID: bookingID}, err
}

func newTestConsumer(engine ReservationEngine) *EscrowEventConsumer {
	return &EscrowEventConsumer{engine: engine, logger: zap.NewNop()}
}

func escrowMessage(t *testing.T, eventType string, bookingID uint64) kafkago.Message {
	t.Helper()
	ce, err := kafka.NewCloudEvent("service-escrow", eventType, contracts.EscrowEvent{
		EscrowID:   "esc-42",
		BookingID:  bookingID,
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	value, err := json.Marshal(ce)
	require.NoError(t, err)
	return kafkago.Message{Topic: contracts.TopicEscrowEvents, Value: value}
}

func TestHandleMessage_Dispatch(t *testing.T) {
	tests := []struct {
		eventType string
		want      call
	}{
		{contracts.EscrowCreated, call{method: "SetEscrowID", bookingID: 3, escrowRef: "esc-42"}},
		{contracts.EscrowFunded, call{method: "UpdateStatus", bookingID: 3, target: bookingDomain.StatusConfirmed}},
		{contracts.EscrowReleased, call{method: "UpdateStatus", bookingID: 3, target: bookingDomain.StatusCompleted}},
		{contracts.EscrowRefunded, call{method: "UpdateStatus", bookingID: 3, target: bookingDomain.StatusCancelled}},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			engine := &fakeEngine{}
			c := newTestConsumer(engine)

			require.NoError(t, c.handleMessage(context.Background(), escrowMessage(t, tt.eventType, 3)))
			require.Len(t, engine.calls, 1)

			got := engine.calls[0]
			assert.Equal(t, tt.want.method, got.method)
			assert.Equal(t, tt.want.bookingID, got.bookingID)
			assert.Equal(t, tt.want.escrowRef, got.escrowRef)
			assert.Equal(t, tt.want.target, got.target)
			assert.Equal(t, bookingDomain.PrivilegedActor{ID: "service-escrow", Role: bookingDomain.ActorEscrow}, got.actor)
		})
	}
}

func TestHandleMessage_IgnoresUnknownAndMalformed(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestConsumer(engine)

	assert.NoError(t, c.handleMessage(context.Background(), escrowMessage(t, "escrow.audited", 1)))
	assert.NoError(t, c.handleMessage(context.Background(), kafkago.Message{Value: []byte("not json")}))
	assert.NoError(t, c.handleMessage(context.Background(), kafkago.Message{Value: []byte(`{"type":"escrow.funded","data":"oops"}`)}))
	assert.Empty(t, engine.calls)
}

func TestHandleMessage_ErrorSettlement(t *testing.T) {
	t.Run("ledger rejection is dropped", func(t *testing.T) {
		engine := &fakeEngine{err: bookingDomain.ErrInvalidTransition}
		c := newTestConsumer(engine)
		assert.NoError(t, c.handleMessage(context.Background(), escrowMessage(t, contracts.EscrowFunded, 1)))
	})

	t.Run("unknown booking is dropped", func(t *testing.T) {
		engine := &fakeEngine{err: bookingDomain.ErrBookingNotFound}
		c := newTestConsumer(engine)
		assert.NoError(t, c.handleMessage(context.Background(), escrowMessage(t, contracts.EscrowCreated, 1)))
	})

	t.Run("infrastructure failure is surfaced", func(t *testing.T) {
		boom := errors.New("db down")
		engine := &fakeEngine{err: boom}
		c := newTestConsumer(engine)
		assert.ErrorIs(t, c.handleMessage(context.Background(), escrowMessage(t, contracts.EscrowReleased, 1)), boom)
	})
}

func TestHandleMessage_TransientFailureIsRetried(t *testing.T) {
	engine := &fakeEngine{failFirst: []error{errors.New("connection refused")}}
	c := newTestConsumer(engine)
	handler := kafka.WithRetry(c.handleMessage, kafka.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}, zap.NewNop())

	require.NoError(t, handler(context.Background(), escrowMessage(t, contracts.EscrowFunded, 8)))

	assert.Len(t, engine.calls, 2)
	require.Len(t, engine.applied, 1)
	assert.Equal(t, bookingDomain.StatusConfirmed, engine.applied[0].target)
	assert.Equal(t, uint64(8), engine.applied[0].bookingID)
}

func TestHandleMessage_ConflictIsRetried(t *testing.T) {
	engine := &fakeEngine{failFirst: []error{domain.NewConflictError("booking was modified by another transaction")}}
	c := newTestConsumer(engine)
	handler := kafka.WithRetry(c.handleMessage, kafka.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}, zap.NewNop())

	require.NoError(t, handler(context.Background(), escrowMessage(t, contracts.EscrowReleased, 2)))
	require.Len(t, engine.applied, 1)
	assert.Equal(t, bookingDomain.StatusCompleted, engine.applied[0].target)
}

func TestHandleMessage_RejectionIsNotRetried(t *testing.T) {
	engine := &fakeEngine{err: bookingDomain.ErrInvalidTransition}
	c := newTestConsumer(engine)
	handler := kafka.WithRetry(c.handleMessage, kafka.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}, zap.NewNop())

	require.NoError(t, handler(context.Background(), escrowMessage(t, contracts.EscrowFunded, 1)))
	assert.Len(t, engine.calls, 1)
	assert.Empty(t, engine.applied)
}
