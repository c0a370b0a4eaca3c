package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
	"github.com/staysure/service-reservation/internal/platform/domain"
)

const (
	bookingsCollection         = "bookings"
	propertyBookingsCollection = "property_bookings"
	countersCollection         = "counters"
)

// MongoBookingRepository is the MongoDB implementation of BookingRepository.
// It needs a replica set: every property write runs in a multi-document transaction.
type MongoBookingRepository struct {
	db         *mongo.Database
	bookings   *mongo.Collection
	properties *mongo.Collection
	counters   *mongo.Collection
}

// NewMongoBookingRepository creates a new MongoBookingRepository.
func NewMongoBookingRepository(db *mongo.Database) *MongoBookingRepository {
	return &MongoBookingRepository{
		db:         db,
		bookings:   db.Collection(bookingsCollection),
		properties: db.Collection(propertyBookingsCollection),
		counters:   db.Collection(countersCollection),
	}
}

// EnsureIndexes creates the secondary indexes used by listing queries.
func (r *MongoBookingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.bookings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "property_id", Value: 1}, {Key: "start_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}

// Ping checks the server is reachable.
func (r *MongoBookingRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

// ResetCounter sets the booking counter to zero, creating it if needed.
func (r *MongoBookingRepository) ResetCounter(ctx context.Context) error {
	_, err := r.counters.UpdateOne(ctx,
		bson.M{"_id": bookCounterName},
		bson.M{"$set": bson.M{"value": int64(0)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to reset booking counter: %w", err)
	}
	return nil
}

// FindByID retrieves a booking by its id.
func (r *MongoBookingRepository) FindByID(ctx context.Context, id uint64) (*bookingDomain.Booking, error) {
	return r.findBookingByID(ctx, id)
}

// FindByPropertyID retrieves a property's bookings in insertion order.
func (r *MongoBookingRepository) FindByPropertyID(ctx context.Context, propertyID string) ([]*bookingDomain.Booking, error) {
	return r.findPropertyBookings(ctx, propertyID)
}

// ListAll retrieves all bookings with pagination, newest first (admin).
func (r *MongoBookingRepository) ListAll(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	page, limit = normalizePage(page, limit)

	total, err := r.bookings.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cursor, err := r.bookings.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	var docs []bookingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bookings: %w", err)
	}

	bookings := make([]*bookingDomain.Booking, 0, len(docs))
	for i := range docs {
		bk, err := docs[i].toDomain()
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, bk)
	}
	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *MongoBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.bookings.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	var results []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode status counts: %w", err)
	}

	counts := make(map[string]int64, len(results))
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// WithinProperty runs fn in a transaction that first writes the property's
// index document. Concurrent writers to the same property hit a write conflict
// and are retried by the driver.
func (r *MongoBookingRepository) WithinProperty(ctx context.Context, propertyID string, fn func(tx bookingDomain.PropertyTx) error) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		_, err := r.properties.UpdateOne(sc,
			bson.M{"_id": propertyID},
			bson.M{
				"$inc":         bson.M{"lock_seq": int64(1)},
				"$setOnInsert": bson.M{"booking_ids": bson.A{}},
			},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to lock property %s: %w", propertyID, err)
		}
		return nil, fn(&mongoPropertyTx{repo: r, session: session, propertyID: propertyID})
	})
	return err
}

func (r *MongoBookingRepository) findBookingByID(ctx context.Context, id uint64) (*bookingDomain.Booking, error) {
	var doc bookingDocument
	if err := r.bookings.FindOne(ctx, bson.M{"_id": int64(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return doc.toDomain()
}

func (r *MongoBookingRepository) findPropertyBookings(ctx context.Context, propertyID string) ([]*bookingDomain.Booking, error) {
	var index propertyIndexDocument
	if err := r.properties.FindOne(ctx, bson.M{"_id": propertyID}).Decode(&index); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []*bookingDomain.Booking{}, nil
		}
		return nil, fmt.Errorf("failed to find property index: %w", err)
	}
	if len(index.BookingIDs) == 0 {
		return []*bookingDomain.Booking{}, nil
	}

	cursor, err := r.bookings.Find(ctx, bson.M{"_id": bson.M{"$in": index.BookingIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to find property bookings: %w", err)
	}
	var docs []bookingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode property bookings: %w", err)
	}

	byID := make(map[int64]*bookingDocument, len(docs))
	for i := range docs {
		byID[docs[i].ID] = &docs[i]
	}

	bookings := make([]*bookingDomain.Booking, 0, len(index.BookingIDs))
	for _, id := range index.BookingIDs {
		doc, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("property index references missing booking %d", id)
		}
		bk, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, bk)
	}
	return bookings, nil
}

type mongoPropertyTx struct {
	repo       *MongoBookingRepository
	session    mongo.Session
	propertyID string
}

func (t *mongoPropertyTx) sessionContext(ctx context.Context) mongo.SessionContext {
	return mongo.NewSessionContext(ctx, t.session)
}

func (t *mongoPropertyTx) Bookings(ctx context.Context) ([]*bookingDomain.Booking, error) {
	return t.repo.findPropertyBookings(t.sessionContext(ctx), t.propertyID)
}

func (t *mongoPropertyTx) FindByID(ctx context.Context, id uint64) (*bookingDomain.Booking, error) {
	bk, err := t.repo.findBookingByID(t.sessionContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if bk.PropertyID() != t.propertyID {
		return nil, notFound(id)
	}
	return bk, nil
}

func (t *mongoPropertyTx) NextID(ctx context.Context) (uint64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := t.repo.counters.FindOneAndUpdate(t.sessionContext(ctx),
		bson.M{"_id": bookCounterName},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before),
	).Decode(&counter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to advance booking counter: %w", err)
	}
	return uint64(counter.Value), nil
}

func (t *mongoPropertyTx) Insert(ctx context.Context, bk *bookingDomain.Booking) error {
	if bk.PropertyID() != t.propertyID {
		return fmt.Errorf("booking %d belongs to property %s, not %s", bk.ID(), bk.PropertyID(), t.propertyID)
	}
	sc := t.sessionContext(ctx)

	if _, err := t.repo.bookings.InsertOne(sc, newBookingDocument(bk)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.NewConflictError(fmt.Sprintf("booking %d already exists", bk.ID()))
		}
		return fmt.Errorf("failed to save booking: %w", err)
	}

	if _, err := t.repo.properties.UpdateOne(sc,
		bson.M{"_id": t.propertyID},
		bson.M{"$push": bson.M{"booking_ids": int64(bk.ID())}},
	); err != nil {
		return fmt.Errorf("failed to index booking: %w", err)
	}
	return nil
}

// Update persists changes with optimistic locking on version.
func (t *mongoPropertyTx) Update(ctx context.Context, bk *bookingDomain.Booking) error {
	doc := newBookingDocument(bk)
	res, err := t.repo.bookings.UpdateOne(t.sessionContext(ctx),
		bson.M{"_id": doc.ID, "version": bk.Version() - 1},
		bson.M{"$set": bson.M{
			"status":     doc.Status,
			"escrow_ref": doc.EscrowRef,
			"version":    doc.Version,
			"updated_at": doc.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}
	return nil
}

type bookingDocument struct {
	ID         int64   `bson:"_id"`
	PropertyID string  `bson:"property_id"`
	UserID     string  `bson:"user_id"`
	StartAt    int64   `bson:"start_at"`
	EndAt      int64   `bson:"end_at"`
	TotalPrice string  `bson:"total_price"`
	Status     string  `bson:"status"`
	EscrowRef  *string `bson:"escrow_ref"`
	Version    int64   `bson:"version"`
	CreatedAt  int64   `bson:"created_at"`
	UpdatedAt  int64   `bson:"updated_at"`
}

type propertyIndexDocument struct {
	PropertyID string  `bson:"_id"`
	BookingIDs []int64 `bson:"booking_ids"`
	LockSeq    int64   `bson:"lock_seq"`
}

func newBookingDocument(bk *bookingDomain.Booking) bookingDocument {
	return bookingDocument{
		ID:         int64(bk.ID()),
		PropertyID: bk.PropertyID(),
		UserID:     bk.UserID(),
		StartAt:    bk.Start().UnixMilli(),
		EndAt:      bk.End().UnixMilli(),
		TotalPrice: bk.TotalPrice().String(),
		Status:     string(bk.Status()),
		EscrowRef:  bk.EscrowRef(),
		Version:    bk.Version(),
		CreatedAt:  bk.CreatedAt().UnixMilli(),
		UpdatedAt:  bk.UpdatedAt().UnixMilli(),
	}
}

func (d bookingDocument) toDomain() (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(d.Status)
	if err != nil {
		return nil, fmt.Errorf("booking %d: %w", d.ID, err)
	}
	price, err := decimal.NewFromString(d.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("booking %d: invalid total price %q: %w", d.ID, d.TotalPrice, err)
	}

	return bookingDomain.ReconstructBooking(
		uint64(d.ID),
		d.PropertyID,
		d.UserID,
		bookingDomain.NewPeriod(timestampToTime(d.StartAt), timestampToTime(d.EndAt)),
		price,
		status,
		d.EscrowRef,
		d.Version,
		timestampToTime(d.CreatedAt),
		timestampToTime(d.UpdatedAt),
	), nil
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
