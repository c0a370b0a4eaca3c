package booking

// IsAvailable reports whether period is free given a property's existing bookings.
// An invalid period is never available. Cancelled bookings are ignored.
// Every availability decision, including the one made while creating a booking, goes through here.
func IsAvailable(existing []*Booking, period Period) bool {
	if !period.IsValid() {
		return false
	}
	for _, b := range existing {
		if !b.Status().BlocksCalendar() {
			continue
		}
		if period.Overlaps(b.Period()) {
			return false
		}
	}
	return true
}
