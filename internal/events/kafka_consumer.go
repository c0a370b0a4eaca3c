package events

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/staysure/service-reservation/internal/application"
	"github.com/staysure/service-reservation/internal/contracts"
	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
	"github.com/staysure/service-reservation/internal/platform/domain"
	"github.com/staysure/service-reservation/internal/platform/kafka"
)

// escrowActorID is used when an escrow event carries no source.
const escrowActorID = "escrow"

// ReservationEngine is the subset of BookingService driven by escrow events.
type ReservationEngine interface {
	SetEscrowID(ctx context.Context, bookingID uint64, escrowRef string, actor bookingDomain.Actor) (*application.BookingDTO, error)
	UpdateStatus(ctx context.Context, bookingID uint64, target bookingDomain.BookingStatus, actor bookingDomain.Actor) (*application.BookingDTO, error)
}

// EscrowEventConsumer listens to escrow events and applies them to bookings.
type EscrowEventConsumer struct {
	consumer *kafka.Consumer
	engine   ReservationEngine
	logger   *zap.Logger
}

// NewEscrowEventConsumer creates a new EscrowEventConsumer.
func NewEscrowEventConsumer(
	brokers []string,
	groupID string,
	engine ReservationEngine,
	logger *zap.Logger,
) *EscrowEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, contracts.TopicEscrowEvents, logger)
	return &EscrowEventConsumer{
		consumer: consumer,
		engine:   engine,
		logger:   logger,
	}
}

// Start begins consuming escrow events. This blocks until the context is cancelled.
func (c *EscrowEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *EscrowEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *EscrowEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from escrow topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	var target bookingDomain.BookingStatus
	switch cloudEvent.Type {
	case contracts.EscrowCreated:
	case contracts.EscrowFunded:
		target = bookingDomain.StatusConfirmed
	case contracts.EscrowReleased:
		target = bookingDomain.StatusCompleted
	case contracts.EscrowRefunded:
		target = bookingDomain.StatusCancelled
	default:
		c.logger.Debug("ignoring unhandled escrow event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}

	var evt contracts.EscrowEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse escrow event data",
			zap.String("type", cloudEvent.Type),
			zap.Error(err),
		)
		return nil // Don't retry malformed data
	}

	actorID := cloudEvent.Source
	if actorID == "" {
		actorID = escrowActorID
	}
	actor := bookingDomain.PrivilegedActor{ID: actorID, Role: bookingDomain.ActorEscrow}

	c.logger.Info("processing escrow event",
		zap.String("type", cloudEvent.Type),
		zap.Uint64("booking_id", evt.BookingID),
		zap.String("escrow_id", evt.EscrowID),
	)

	if target == "" {
		_, err = c.engine.SetEscrowID(ctx, evt.BookingID, evt.EscrowID, actor)
	} else {
		_, err = c.engine.UpdateStatus(ctx, evt.BookingID, target, actor)
	}
	return c.settle(cloudEvent.Type, evt.BookingID, err)
}

// settle drops rejections the ledger will never accept and surfaces everything
// else so the consumer retries the message before moving past it.
func (c *EscrowEventConsumer) settle(eventType string, bookingID uint64, err error) error {
	if err == nil {
		c.logger.Info("escrow event applied",
			zap.String("type", eventType),
			zap.Uint64("booking_id", bookingID),
		)
		return nil
	}

	if code := domain.CodeOf(err); code != domain.CodeInternal && code != domain.CodeConflict {
		c.logger.Warn("escrow event rejected by ledger",
			zap.String("type", eventType),
			zap.Uint64("booking_id", bookingID),
			zap.String("code", string(code)),
			zap.Error(err),
		)
		return nil
	}

	c.logger.Error("failed to apply escrow event",
		zap.String("type", eventType),
		zap.Uint64("booking_id", bookingID),
		zap.Error(err),
	)
	return err
}
