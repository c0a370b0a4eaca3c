package booking

// ActorRole identifies the kind of privileged caller.
type ActorRole string

const (
	ActorOperator ActorRole = "operator"
	ActorEscrow   ActorRole = "escrow"
	ActorAdmin    ActorRole = "admin"
)

// IsPrivileged reports whether the role may drive booking lifecycle changes.
func (r ActorRole) IsPrivileged() bool {
	switch r {
	case ActorOperator, ActorEscrow, ActorAdmin:
		return true
	}
	return false
}

// Actor is the capability a caller presents to mutate a booking.
// OwnerOfRecord gates cancellation; PrivilegedActor gates status changes and escrow attachment.
type Actor interface {
	// Authorize returns ErrUnauthorized if the actor may not act on b.
	Authorize(b *Booking) error
	// Principal identifies the caller for auditing.
	Principal() string
}

// OwnerOfRecord is the user who made the booking.
type OwnerOfRecord struct {
	UserID string
}

// Authorize succeeds only when UserID matches the booking's user.
func (o OwnerOfRecord) Authorize(b *Booking) error {
	if o.UserID == "" || o.UserID != b.UserID() {
		return ErrUnauthorized
	}
	return nil
}

// Principal returns the user id.
func (o OwnerOfRecord) Principal() string { return o.UserID }

// PrivilegedActor is an authenticated operator, admin, or escrow subsystem.
type PrivilegedActor struct {
	ID   string
	Role ActorRole
}

// Authorize succeeds for any authenticated privileged caller, independent of the booking.
func (p PrivilegedActor) Authorize(_ *Booking) error {
	if p.ID == "" || !p.Role.IsPrivileged() {
		return ErrUnauthorized
	}
	return nil
}

// Principal returns the actor id.
func (p PrivilegedActor) Principal() string { return p.ID }

// RequireRole narrows actor to a PrivilegedActor holding role.
func RequireRole(actor Actor, role ActorRole) error {
	p, ok := actor.(PrivilegedActor)
	if !ok || p.ID == "" || p.Role != role {
		return ErrUnauthorized
	}
	return nil
}
