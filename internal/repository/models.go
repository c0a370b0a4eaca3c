package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
)

// bookCounterName is the row holding the ledger's booking id counter.
const bookCounterName = "BOOK_COUNT"

// BookingModel is the GORM model for the bookings table, the primary record of every booking.
type BookingModel struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement:false"`
	PropertyID string          `gorm:"not null;size:128;index:idx_bookings_property_period,priority:1"`
	UserID     string          `gorm:"not null;size:128;index"`
	StartAt    time.Time       `gorm:"not null;index:idx_bookings_property_period,priority:2"`
	EndAt      time.Time       `gorm:"not null;index:idx_bookings_property_period,priority:3"`
	TotalPrice decimal.Decimal `gorm:"type:numeric(39,0);not null"`
	Status     string          `gorm:"not null;size:20;index"`
	EscrowRef  *string         `gorm:"size:255"`
	Version    int64           `gorm:"not null;default:1"`
	CreatedAt  time.Time       `gorm:"not null"`
	UpdatedAt  time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// PropertyBookingModel is one entry of the per-property secondary index.
// It stores ids only; booking fields live in BookingModel.
type PropertyBookingModel struct {
	PropertyID string `gorm:"primaryKey;size:128"`
	Position   int64  `gorm:"primaryKey;autoIncrement:false"`
	BookingID  uint64 `gorm:"not null;uniqueIndex"`
}

// TableName returns the table name for the GORM model.
func (PropertyBookingModel) TableName() string {
	return "property_bookings"
}

// BookingCounterModel holds named monotonic counters.
type BookingCounterModel struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value uint64 `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingCounterModel) TableName() string {
	return "booking_counters"
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	return &BookingModel{
		ID:         bk.ID(),
		PropertyID: bk.PropertyID(),
		UserID:     bk.UserID(),
		StartAt:    bk.Start(),
		EndAt:      bk.End(),
		TotalPrice: bk.TotalPrice(),
		Status:     string(bk.Status()),
		EscrowRef:  bk.EscrowRef(),
		Version:    bk.Version(),
		CreatedAt:  bk.CreatedAt(),
		UpdatedAt:  bk.UpdatedAt(),
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("booking %d: %w", m.ID, err)
	}

	var escrowRef *string
	if m.EscrowRef != nil {
		ref := *m.EscrowRef
		escrowRef = &ref
	}

	return bookingDomain.ReconstructBooking(
		m.ID,
		m.PropertyID,
		m.UserID,
		bookingDomain.NewPeriod(m.StartAt, m.EndAt),
		m.TotalPrice,
		status,
		escrowRef,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}

func notFound(id uint64) error {
	return fmt.Errorf("%w: %d", bookingDomain.ErrBookingNotFound, id)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}
