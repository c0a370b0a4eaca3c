// Package contracts holds the Kafka topics, event types and payloads exchanged
// between the reservation service and its collaborators.
package contracts

import "time"

// Topics.
const (
	TopicBookingEvents = "reservation.booking.events"
	TopicEscrowEvents  = "escrow.events"
)

// Event source emitted in the CloudEvent envelope.
const EventSource = "service-reservation"

// Booking event types published by the reservation service.
const (
	BookingRequested      = "booking.requested"
	BookingConfirmed      = "booking.confirmed"
	BookingCompleted      = "booking.completed"
	BookingCancelled      = "booking.cancelled"
	BookingEscrowAttached = "booking.escrow_attached"
)

// Escrow event types consumed by the reservation service.
const (
	EscrowCreated  = "escrow.created"
	EscrowFunded   = "escrow.funded"
	EscrowReleased = "escrow.released"
	EscrowRefunded = "escrow.refunded"
)

// BookingRequestedEvent is published after a booking is created.
type BookingRequestedEvent struct {
	BookingID  uint64    `json:"booking_id"`
	PropertyID string    `json:"property_id"`
	UserID     string    `json:"user_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	TotalPrice string    `json:"total_price"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BookingStatusChangedEvent is published for confirmed, completed and cancelled transitions.
type BookingStatusChangedEvent struct {
	BookingID  uint64    `json:"booking_id"`
	PropertyID string    `json:"property_id"`
	UserID     string    `json:"user_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ChangedBy  string    `json:"changed_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BookingEscrowAttachedEvent is published after an escrow reference is stored.
type BookingEscrowAttachedEvent struct {
	BookingID  uint64    `json:"booking_id"`
	PropertyID string    `json:"property_id"`
	EscrowRef  string    `json:"escrow_ref"`
	AttachedBy string    `json:"attached_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EscrowEvent is the payload of every escrow.* event.
type EscrowEvent struct {
	EscrowID   string    `json:"escrow_id"`
	BookingID  uint64    `json:"booking_id"`
	Amount     string    `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
