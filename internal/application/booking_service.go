package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/staysure/service-reservation/internal/contracts"
	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
	"github.com/staysure/service-reservation/internal/platform/domain"
	"github.com/staysure/service-reservation/internal/platform/kafka"
)

const tracerName = "github.com/staysure/service-reservation/internal/application"

// EventPublisher publishes domain events. *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// CreateBookingRequest holds the data needed to create a new booking.
type CreateBookingRequest struct {
	PropertyID string          `json:"property_id" binding:"required"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID         uint64          `json:"id"`
	PropertyID string          `json:"property_id"`
	UserID     string          `json:"user_id"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     string          `json:"status"`
	EscrowRef  *string         `json:"escrow_ref,omitempty"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Option configures a BookingService.
type Option func(*BookingService)

// WithClock overrides the time source used for past-start checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *BookingService) { s.now = now }
}

// WithEscrowCallerCheck makes SetEscrowID require an actor with the escrow role.
func WithEscrowCallerCheck(enabled bool) Option {
	return func(s *BookingService) { s.enforceEscrowCaller = enabled }
}

// BookingService is the reservation engine: availability, creation, the status
// lifecycle and escrow attachment. Every write to a property's bookings runs
// inside repo.WithinProperty.
type BookingService struct {
	repo      bookingDomain.BookingRepository
	publisher EventPublisher
	logger    *zap.Logger
	tracer    trace.Tracer

	now                 func() time.Time
	enforceEscrowCaller bool
}

// NewBookingService creates a new BookingService. publisher may be nil, in which
// case no events are emitted.
func NewBookingService(
	repo bookingDomain.BookingRepository,
	publisher EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *BookingService {
	s := &BookingService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize resets the booking id counter to zero. It is meant to run once per fresh deployment.
func (s *BookingService) Initialize(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.Initialize")
	defer func() { finishSpan(span, err) }()

	if err := s.repo.ResetCounter(ctx); err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}
	s.logger.Warn("booking ledger initialized, id counter reset to 0")
	return nil
}

// CheckAvailability reports whether [start, end) is free on the property.
// start >= end is never available and is not an error.
func (s *BookingService) CheckAvailability(ctx context.Context, propertyID string, start, end time.Time) (available bool, err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.CheckAvailability",
		trace.WithAttributes(attribute.String("property_id", propertyID)))
	defer func() { finishSpan(span, err) }()

	period := bookingDomain.NewPeriod(start, end)
	if !period.IsValid() {
		return false, nil
	}

	existing, err := s.repo.FindByPropertyID(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return bookingDomain.IsAvailable(existing, period), nil
}

// CreateBooking validates the request, then allocates an id and stores a pending
// booking while holding the property. The overlap check and the write happen
// under the same lock.
func (s *BookingService) CreateBooking(ctx context.Context, userID string, req CreateBookingRequest) (_ *BookingDTO, err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.CreateBooking",
		trace.WithAttributes(attribute.String("property_id", req.PropertyID)))
	defer func() { finishSpan(span, err) }()

	now := s.now()
	period := bookingDomain.NewPeriod(req.Start, req.End)
	if err := bookingDomain.ValidateRequest(period, req.TotalPrice, now); err != nil {
		return nil, err
	}

	var bk *bookingDomain.Booking
	err = s.repo.WithinProperty(ctx, req.PropertyID, func(tx bookingDomain.PropertyTx) error {
		existing, err := tx.Bookings(ctx)
		if err != nil {
			return err
		}
		if !bookingDomain.IsAvailable(existing, period) {
			return overlapError(req.PropertyID, period)
		}

		id, err := tx.NextID(ctx)
		if err != nil {
			return err
		}
		created, err := bookingDomain.NewBooking(id, req.PropertyID, userID, period, req.TotalPrice, now)
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, created); err != nil {
			return err
		}
		bk = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("booking_id", int64(bk.ID())))
	s.logger.Info("booking created",
		zap.Uint64("booking_id", bk.ID()),
		zap.String("property_id", bk.PropertyID()),
		zap.String("user_id", bk.UserID()),
		zap.Time("start", bk.Start()),
		zap.Time("end", bk.End()),
	)

	s.publishEvent(ctx, contracts.BookingRequested, bk, contracts.BookingRequestedEvent{
		BookingID:  bk.ID(),
		PropertyID: bk.PropertyID(),
		UserID:     bk.UserID(),
		Start:      bk.Start(),
		End:        bk.End(),
		TotalPrice: bk.TotalPrice().String(),
		OccurredAt: now.UTC(),
	})

	result := toBookingDTO(bk)
	return &result, nil
}

// CancelBooking cancels a pending or confirmed booking on behalf of its owner of record.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID uint64, userID string) (_ *BookingDTO, err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.CancelBooking",
		trace.WithAttributes(attribute.Int64("booking_id", int64(bookingID))))
	defer func() { finishSpan(span, err) }()

	owner := bookingDomain.OwnerOfRecord{UserID: userID}
	var from bookingDomain.BookingStatus
	bk, err := s.mutate(ctx, bookingID, func(bk *bookingDomain.Booking, now time.Time) error {
		from = bk.Status()
		return bk.Cancel(owner, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking cancelled",
		zap.Uint64("booking_id", bk.ID()),
		zap.String("cancelled_by", userID),
	)
	s.publishStatusChanged(ctx, bk, from, owner)

	result := toBookingDTO(bk)
	return &result, nil
}

// UpdateStatus moves a booking through the lifecycle on behalf of a privileged actor.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID uint64, target bookingDomain.BookingStatus, actor bookingDomain.Actor) (_ *BookingDTO, err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.UpdateStatus",
		trace.WithAttributes(
			attribute.Int64("booking_id", int64(bookingID)),
			attribute.String("target_status", target.String()),
		))
	defer func() { finishSpan(span, err) }()

	var from bookingDomain.BookingStatus
	bk, err := s.mutate(ctx, bookingID, func(bk *bookingDomain.Booking, now time.Time) error {
		from = bk.Status()
		return bk.TransitionTo(target, actor, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking status updated",
		zap.Uint64("booking_id", bk.ID()),
		zap.String("from", from.String()),
		zap.String("to", bk.Status().String()),
		zap.String("actor", actor.Principal()),
	)
	s.publishStatusChanged(ctx, bk, from, actor)

	result := toBookingDTO(bk)
	return &result, nil
}

// SetEscrowID attaches an external escrow reference to a booking.
// Any privileged actor may call it unless the escrow caller check is enabled.
func (s *BookingService) SetEscrowID(ctx context.Context, bookingID uint64, escrowRef string, actor bookingDomain.Actor) (_ *BookingDTO, err error) {
	ctx, span := s.tracer.Start(ctx, "BookingService.SetEscrowID",
		trace.WithAttributes(attribute.Int64("booking_id", int64(bookingID))))
	defer func() { finishSpan(span, err) }()

	bk, err := s.mutate(ctx, bookingID, func(bk *bookingDomain.Booking, now time.Time) error {
		if s.enforceEscrowCaller {
			if err := bookingDomain.RequireRole(actor, bookingDomain.ActorEscrow); err != nil {
				return err
			}
		} else if err := actor.Authorize(bk); err != nil {
			return err
		}
		bk.AttachEscrow(escrowRef, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("escrow attached",
		zap.Uint64("booking_id", bk.ID()),
		zap.String("escrow_ref", escrowRef),
		zap.String("actor", actor.Principal()),
	)
	s.publishEvent(ctx, contracts.BookingEscrowAttached, bk, contracts.BookingEscrowAttachedEvent{
		BookingID:  bk.ID(),
		PropertyID: bk.PropertyID(),
		EscrowRef:  escrowRef,
		AttachedBy: actor.Principal(),
		OccurredAt: bk.UpdatedAt(),
	})

	result := toBookingDTO(bk)
	return &result, nil
}

// GetBooking retrieves a single booking by id.
func (s *BookingService) GetBooking(ctx context.Context, bookingID uint64) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// GetPropertyBookings returns every booking of a property in insertion order,
// cancelled ones included. An unknown property yields an empty list.
func (s *BookingService) GetPropertyBookings(ctx context.Context, propertyID string) ([]BookingDTO, error) {
	bookings, err := s.repo.FindByPropertyID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return toBookingDTOs(bookings), nil
}

// --- Admin methods ---

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	bookings, total, err := s.repo.ListAll(ctx, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit)
	return &result, nil
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      counts,
	}, nil
}

// --- Helpers ---

// overlapError wraps ErrBookingOverlap with the rejected interval.
func overlapError(propertyID string, period bookingDomain.Period) error {
	return fmt.Errorf("%w: property %s [%s, %s)", bookingDomain.ErrBookingOverlap,
		propertyID, period.Start.Format(time.RFC3339), period.End.Format(time.RFC3339))
}

// mutate applies fn to the current state of a booking while holding its property,
// then persists it with a bumped version.
func (s *BookingService) mutate(
	ctx context.Context,
	bookingID uint64,
	fn func(bk *bookingDomain.Booking, now time.Time) error,
) (*bookingDomain.Booking, error) {
	current, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var updated *bookingDomain.Booking
	err = s.repo.WithinProperty(ctx, current.PropertyID(), func(tx bookingDomain.PropertyTx) error {
		bk, err := tx.FindByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := fn(bk, s.now()); err != nil {
			return err
		}
		bk.IncrementVersion()
		if err := tx.Update(ctx, bk); err != nil {
			return err
		}
		updated = bk
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *BookingService) publishStatusChanged(ctx context.Context, bk *bookingDomain.Booking, from bookingDomain.BookingStatus, actor bookingDomain.Actor) {
	var eventType string
	switch bk.Status() {
	case bookingDomain.StatusConfirmed:
		eventType = contracts.BookingConfirmed
	case bookingDomain.StatusCompleted:
		eventType = contracts.BookingCompleted
	case bookingDomain.StatusCancelled:
		eventType = contracts.BookingCancelled
	default:
		return
	}

	s.publishEvent(ctx, eventType, bk, contracts.BookingStatusChangedEvent{
		BookingID:  bk.ID(),
		PropertyID: bk.PropertyID(),
		UserID:     bk.UserID(),
		FromStatus: from.String(),
		ToStatus:   bk.Status().String(),
		ChangedBy:  actor.Principal(),
		OccurredAt: bk.UpdatedAt(),
	})
}

func (s *BookingService) publishEvent(ctx context.Context, eventType string, bk *bookingDomain.Booking, data interface{}) {
	if s.publisher == nil {
		return
	}

	cloudEvent, err := kafka.NewCloudEvent(contracts.EventSource, eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}
	cloudEvent.Subject = strconv.FormatUint(bk.ID(), 10)

	if err := s.publisher.PublishEvent(ctx, contracts.TopicBookingEvents, cloudEvent); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("topic", contracts.TopicBookingEvents),
			zap.String("event_type", eventType),
			zap.Uint64("booking_id", bk.ID()),
			zap.Error(err),
		)
	}
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:         bk.ID(),
		PropertyID: bk.PropertyID(),
		UserID:     bk.UserID(),
		Start:      bk.Start(),
		End:        bk.End(),
		TotalPrice: bk.TotalPrice(),
		Status:     string(bk.Status()),
		EscrowRef:  bk.EscrowRef(),
		Version:    bk.Version(),
		CreatedAt:  bk.CreatedAt(),
		UpdatedAt:  bk.UpdatedAt(),
	}
}

func toBookingDTOs(bookings []*bookingDomain.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return dtos
}
