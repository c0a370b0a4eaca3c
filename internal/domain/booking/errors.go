package booking

import "github.com/staysure/service-reservation/internal/platform/domain"

// Rejections raised by the reservation engine. None of them are transient.
var (
	ErrInvalidDateRange  = domain.NewValidationError("invalid dates: start must be before end")
	ErrInvalidPrice      = domain.NewValidationError("invalid price: total price must be a positive whole amount")
	ErrPastStartDate     = domain.NewValidationError("invalid dates: start cannot be in the past")
	ErrBookingOverlap    = domain.NewConflictError("booking overlap: dates conflict with an existing reservation")
	ErrBookingNotFound   = domain.NewNotFoundError("booking")
	ErrUnauthorized      = domain.NewForbiddenError("unauthorized: caller may not modify this booking")
	ErrInvalidStatus     = domain.NewInvalidStateError("invalid status: booking is already completed or cancelled")
	ErrInvalidTransition = domain.NewInvalidStateError("invalid status transition")
)
