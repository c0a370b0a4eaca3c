package booking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Booking is the aggregate root of the reservation ledger: an exclusive claim
// on one property over a half-open period.
type Booking struct {
	id         uint64
	propertyID string
	userID     string
	period     Period
	totalPrice decimal.Decimal
	status     BookingStatus
	escrowRef  *string

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// ValidateRequest applies the creation checks that do not depend on other bookings,
// in order: date range, price, start not in the past.
func ValidateRequest(period Period, totalPrice decimal.Decimal, now time.Time) error {
	if !period.IsValid() {
		return ErrInvalidDateRange
	}
	if !totalPrice.IsPositive() || !totalPrice.IsInteger() {
		return ErrInvalidPrice
	}
	if period.Start.Before(now.Truncate(Resolution)) {
		return ErrPastStartDate
	}
	return nil
}

// NewBooking creates a Booking in status pending with no escrow reference.
// Availability is the caller's responsibility: it needs the property's other bookings.
func NewBooking(
	id uint64,
	propertyID string,
	userID string,
	period Period,
	totalPrice decimal.Decimal,
	now time.Time,
) (*Booking, error) {
	if err := ValidateRequest(period, totalPrice, now); err != nil {
		return nil, err
	}

	now = now.UTC()
	return &Booking{
		id:         id,
		propertyID: propertyID,
		userID:     userID,
		period:     NewPeriod(period.Start, period.End),
		totalPrice: totalPrice,
		status:     StatusPending,
		version:    1,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(
	id uint64,
	propertyID string,
	userID string,
	period Period,
	totalPrice decimal.Decimal,
	status BookingStatus,
	escrowRef *string,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
) *Booking {
	return &Booking{
		id:         id,
		propertyID: propertyID,
		userID:     userID,
		period:     NewPeriod(period.Start, period.End),
		totalPrice: totalPrice,
		status:     status,
		escrowRef:  escrowRef,
		version:    version,
		createdAt:  createdAt.UTC(),
		updatedAt:  updatedAt.UTC(),
	}
}

// --- Getters ---

// ID returns the ledger-assigned identifier.
func (b *Booking) ID() uint64 { return b.id }

// PropertyID returns the opaque identifier of the reserved property.
func (b *Booking) PropertyID() string { return b.propertyID }

// UserID returns the opaque identifier of the requester.
func (b *Booking) UserID() string { return b.userID }

// Period returns the reserved interval.
func (b *Booking) Period() Period { return b.period }

// Start returns the inclusive start of the reservation.
func (b *Booking) Start() time.Time { return b.period.Start }

// End returns the exclusive end of the reservation.
func (b *Booking) End() time.Time { return b.period.End }

// TotalPrice returns the agreed total.
func (b *Booking) TotalPrice() decimal.Decimal { return b.totalPrice }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// EscrowRef returns the attached escrow reference, or nil if none.
func (b *Booking) EscrowRef() *string {
	if b.escrowRef == nil {
		return nil
	}
	ref := *b.escrowRef
	return &ref
}

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// --- Behavior ---

// TransitionTo moves the booking to target on behalf of actor.
// Authorization is checked before the transition table.
func (b *Booking) TransitionTo(target BookingStatus, actor Actor, now time.Time) error {
	if err := actor.Authorize(b); err != nil {
		return err
	}
	if !b.status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, b.status, target)
	}
	b.status = target
	b.touch(now)
	return nil
}

// Cancel moves a pending or confirmed booking to cancelled. Only the owner of record may cancel.
func (b *Booking) Cancel(owner OwnerOfRecord, now time.Time) error {
	if err := owner.Authorize(b); err != nil {
		return err
	}
	if !b.status.CanBeCancelled() {
		return fmt.Errorf("%w: status is %s", ErrInvalidStatus, b.status)
	}
	b.status = StatusCancelled
	b.touch(now)
	return nil
}

// AttachEscrow records the external escrow reference, replacing any previous one.
func (b *Booking) AttachEscrow(ref string, now time.Time) {
	b.escrowRef = &ref
	b.touch(now)
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
}

func (b *Booking) touch(now time.Time) {
	b.updatedAt = now.UTC()
}
