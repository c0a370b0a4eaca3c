package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
	"github.com/staysure/service-reservation/internal/platform/domain"
)

// GormBookingRepository is the PostgreSQL implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// AutoMigrate creates or updates the ledger tables (development only).
func (r *GormBookingRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&BookingModel{}, &PropertyBookingModel{}, &BookingCounterModel{})
}

// Ping checks the database connection.
func (r *GormBookingRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ResetCounter sets the booking counter to zero, creating it if needed.
func (r *GormBookingRepository) ResetCounter(ctx context.Context) error {
	counter := BookingCounterModel{Name: bookCounterName, Value: 0}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"value": 0}),
		}).
		Create(&counter).Error
	if err != nil {
		return fmt.Errorf("failed to reset booking counter: %w", err)
	}
	return nil
}

// FindByID retrieves a booking by its id.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uint64) (*bookingDomain.Booking, error) {
	return findBookingByID(r.db.WithContext(ctx), id)
}

// FindByPropertyID retrieves a property's bookings in insertion order.
func (r *GormBookingRepository) FindByPropertyID(ctx context.Context, propertyID string) ([]*bookingDomain.Booking, error) {
	return findPropertyBookings(r.db.WithContext(ctx), propertyID)
}

// ListAll retrieves all bookings with pagination (admin).
func (r *GormBookingRepository) ListAll(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	page, limit = normalizePage(page, limit)

	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// WithinProperty runs fn inside a transaction holding a transaction-scoped
// advisory lock on propertyID, so writers to the same property are serialized
// across every service instance.
func (r *GormBookingRepository) WithinProperty(ctx context.Context, propertyID string, fn func(tx bookingDomain.PropertyTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", propertyID).Error; err != nil {
			return fmt.Errorf("failed to lock property %s: %w", propertyID, err)
		}
		return fn(&gormPropertyTx{db: tx, propertyID: propertyID})
	})
}

type gormPropertyTx struct {
	db         *gorm.DB
	propertyID string
}

func (t *gormPropertyTx) Bookings(ctx context.Context) ([]*bookingDomain.Booking, error) {
	return findPropertyBookings(t.db.WithContext(ctx), t.propertyID)
}

func (t *gormPropertyTx) FindByID(ctx context.Context, id uint64) (*bookingDomain.Booking, error) {
	bk, err := findBookingByID(t.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if bk.PropertyID() != t.propertyID {
		return nil, notFound(id)
	}
	return bk, nil
}

// NextID locks the counter row for the rest of the transaction, so ids are
// allocated in commit order and a rolled-back booking does not consume one.
func (t *gormPropertyTx) NextID(ctx context.Context) (uint64, error) {
	db := t.db.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&BookingCounterModel{Name: bookCounterName, Value: 0}).Error; err != nil {
		return 0, fmt.Errorf("failed to ensure booking counter: %w", err)
	}

	var counter BookingCounterModel
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", bookCounterName).
		Take(&counter).Error; err != nil {
		return 0, fmt.Errorf("failed to read booking counter: %w", err)
	}

	id := counter.Value
	if err := db.Model(&BookingCounterModel{}).
		Where("name = ?", bookCounterName).
		Update("value", id+1).Error; err != nil {
		return 0, fmt.Errorf("failed to advance booking counter: %w", err)
	}
	return id, nil
}

func (t *gormPropertyTx) Insert(ctx context.Context, bk *bookingDomain.Booking) error {
	if bk.PropertyID() != t.propertyID {
		return fmt.Errorf("booking %d belongs to property %s, not %s", bk.ID(), bk.PropertyID(), t.propertyID)
	}
	db := t.db.WithContext(ctx)

	if err := db.Create(toBookingModel(bk)).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}

	var position int64
	if err := db.Model(&PropertyBookingModel{}).
		Select("COALESCE(MAX(position), -1) + 1").
		Where("property_id = ?", t.propertyID).
		Scan(&position).Error; err != nil {
		return fmt.Errorf("failed to read property index position: %w", err)
	}

	entry := PropertyBookingModel{PropertyID: t.propertyID, Position: position, BookingID: bk.ID()}
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to index booking: %w", err)
	}
	return nil
}

// Update persists changes with optimistic locking on version.
func (t *gormPropertyTx) Update(ctx context.Context, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)

	expectedVersion := bk.Version() - 1
	result := t.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":     model.Status,
			"escrow_ref": model.EscrowRef,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}

	return nil
}

func findBookingByID(db *gorm.DB, id uint64) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

func findPropertyBookings(db *gorm.DB, propertyID string) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := db.
		Joins("JOIN property_bookings ON property_bookings.booking_id = bookings.id").
		Where("property_bookings.property_id = ?", propertyID).
		Order("property_bookings.position ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find property bookings: %w", err)
	}
	return toDomainBookings(models)
}
