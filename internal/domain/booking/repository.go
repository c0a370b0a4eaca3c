package booking

import "context"

// BookingRepository defines the persistence contract for the reservation ledger.
//
// Implementations keep one record per booking keyed by id and a secondary index
// of ids per property in insertion order. Property reads are rebuilt from the
// primary records, so both views always agree.
type BookingRepository interface {
	// ResetCounter sets the booking id counter back to zero.
	ResetCounter(ctx context.Context) error

	// FindByID retrieves a booking by id, or ErrBookingNotFound.
	FindByID(ctx context.Context, id uint64) (*Booking, error)

	// FindByPropertyID retrieves a property's bookings in insertion order.
	// A property without bookings yields an empty slice.
	FindByPropertyID(ctx context.Context, propertyID string) ([]*Booking, error)

	// ListAll retrieves all bookings with pagination, newest first (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// WithinProperty runs fn with exclusive access to one property's bookings.
	// Writes made through the PropertyTx become visible together when fn returns nil
	// and are discarded when it returns an error.
	WithinProperty(ctx context.Context, propertyID string, fn func(tx PropertyTx) error) error
}

// PropertyTx is the unit of work handed to WithinProperty.
type PropertyTx interface {
	// Bookings returns the property's bookings in insertion order.
	Bookings(ctx context.Context) ([]*Booking, error)

	// FindByID retrieves a booking of this property by id, or ErrBookingNotFound.
	FindByID(ctx context.Context, id uint64) (*Booking, error)

	// NextID returns the current counter value and increments the counter.
	NextID(ctx context.Context) (uint64, error)

	// Insert stores a new booking and appends it to the property index.
	Insert(ctx context.Context, b *Booking) error

	// Update persists changes to an existing booking. The booking's version must
	// already be incremented; the stored version must equal Version()-1.
	Update(ctx context.Context, b *Booking) error
}
