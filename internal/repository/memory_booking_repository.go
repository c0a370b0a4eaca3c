package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
	"github.com/staysure/service-reservation/internal/platform/domain"
)

// MemoryBookingRepository keeps the ledger in process memory.
// Writers are serialized by a single mutex; readers see only committed units.
type MemoryBookingRepository struct {
	writeMu sync.Mutex

	mu         sync.RWMutex
	counter    uint64
	bookings   map[uint64]BookingModel
	byProperty map[string][]uint64
}

// NewMemoryBookingRepository creates an empty MemoryBookingRepository.
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings:   make(map[uint64]BookingModel),
		byProperty: make(map[string][]uint64),
	}
}

// Ping always succeeds.
func (r *MemoryBookingRepository) Ping(context.Context) error { return nil }

// ResetCounter sets the booking counter to zero.
func (r *MemoryBookingRepository) ResetCounter(context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.counter = 0
	r.mu.Unlock()
	return nil
}

// FindByID retrieves a booking by its id.
func (r *MemoryBookingRepository) FindByID(_ context.Context, id uint64) (*bookingDomain.Booking, error) {
	r.mu.RLock()
	m, ok := r.bookings[id]
	r.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	return toDomainBooking(&m)
}

// FindByPropertyID retrieves a property's bookings in insertion order.
func (r *MemoryBookingRepository) FindByPropertyID(_ context.Context, propertyID string) ([]*bookingDomain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.propertyBookingsLocked(propertyID, nil)
}

// ListAll retrieves all bookings with pagination, newest first (admin).
func (r *MemoryBookingRepository) ListAll(_ context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	page, limit = normalizePage(page, limit)

	r.mu.RLock()
	models := make([]BookingModel, 0, len(r.bookings))
	for _, m := range r.bookings {
		models = append(models, m)
	}
	r.mu.RUnlock()

	sort.Slice(models, func(i, j int) bool {
		if !models[i].CreatedAt.Equal(models[j].CreatedAt) {
			return models[i].CreatedAt.After(models[j].CreatedAt)
		}
		return models[i].ID > models[j].ID
	})

	total := int64(len(models))
	offset := (page - 1) * limit
	if offset >= len(models) {
		return []*bookingDomain.Booking{}, total, nil
	}
	end := offset + limit
	if end > len(models) {
		end = len(models)
	}

	bookings, err := toDomainBookings(models[offset:end])
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *MemoryBookingRepository) CountByStatus(context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, m := range r.bookings {
		counts[m.Status]++
	}
	return counts, nil
}

// WithinProperty stages fn's writes and applies them atomically if fn succeeds.
func (r *MemoryBookingRepository) WithinProperty(_ context.Context, propertyID string, fn func(tx bookingDomain.PropertyTx) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	tx := &memoryPropertyTx{
		repo:       r,
		propertyID: propertyID,
		counter:    r.counter,
		staged:     make(map[uint64]BookingModel),
	}
	r.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter = tx.counter
	for id, m := range tx.staged {
		r.bookings[id] = m
	}
	r.byProperty[propertyID] = append(r.byProperty[propertyID], tx.inserted...)
	return nil
}

// propertyBookingsLocked merges committed and staged records. Callers hold r.mu.
func (r *MemoryBookingRepository) propertyBookingsLocked(propertyID string, tx *memoryPropertyTx) ([]*bookingDomain.Booking, error) {
	ids := r.byProperty[propertyID]
	if tx != nil {
		ids = append(append([]uint64(nil), ids...), tx.inserted...)
	}

	bookings := make([]*bookingDomain.Booking, 0, len(ids))
	for _, id := range ids {
		m, ok := tx.lookup(id)
		if !ok {
			m, ok = r.bookings[id]
		}
		if !ok {
			return nil, fmt.Errorf("property index references missing booking %d", id)
		}
		bk, err := toDomainBooking(&m)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, bk)
	}
	return bookings, nil
}

type memoryPropertyTx struct {
	repo       *MemoryBookingRepository
	propertyID string
	counter    uint64
	staged     map[uint64]BookingModel
	inserted   []uint64
}

func (t *memoryPropertyTx) lookup(id uint64) (BookingModel, bool) {
	if t == nil {
		return BookingModel{}, false
	}
	m, ok := t.staged[id]
	return m, ok
}

func (t *memoryPropertyTx) Bookings(context.Context) ([]*bookingDomain.Booking, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.propertyBookingsLocked(t.propertyID, t)
}

func (t *memoryPropertyTx) FindByID(_ context.Context, id uint64) (*bookingDomain.Booking, error) {
	m, ok := t.lookup(id)
	if !ok {
		t.repo.mu.RLock()
		m, ok = t.repo.bookings[id]
		t.repo.mu.RUnlock()
	}
	if !ok || m.PropertyID != t.propertyID {
		return nil, notFound(id)
	}
	return toDomainBooking(&m)
}

func (t *memoryPropertyTx) NextID(context.Context) (uint64, error) {
	id := t.counter
	t.counter++
	return id, nil
}

func (t *memoryPropertyTx) Insert(_ context.Context, bk *bookingDomain.Booking) error {
	if bk.PropertyID() != t.propertyID {
		return fmt.Errorf("booking %d belongs to property %s, not %s", bk.ID(), bk.PropertyID(), t.propertyID)
	}
	if _, exists := t.lookup(bk.ID()); exists {
		return domain.NewConflictError(fmt.Sprintf("booking %d already exists", bk.ID()))
	}
	t.repo.mu.RLock()
	_, exists := t.repo.bookings[bk.ID()]
	t.repo.mu.RUnlock()
	if exists {
		return domain.NewConflictError(fmt.Sprintf("booking %d already exists", bk.ID()))
	}

	t.staged[bk.ID()] = *toBookingModel(bk)
	t.inserted = append(t.inserted, bk.ID())
	return nil
}

func (t *memoryPropertyTx) Update(ctx context.Context, bk *bookingDomain.Booking) error {
	current, err := t.FindByID(ctx, bk.ID())
	if err != nil {
		return err
	}
	if current.Version() != bk.Version()-1 {
		return domain.NewConflictError("booking was modified by another transaction")
	}
	t.staged[bk.ID()] = *toBookingModel(bk)
	return nil
}
