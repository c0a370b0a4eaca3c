package booking

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/staysure/service-reservation/internal/platform/domain"
)

func TestErrors_Codes(t *testing.T) {
	tests := []struct {
		err  error
		code domain.ErrorCode
	}{
		{ErrInvalidDateRange, domain.CodeValidation},
		{ErrInvalidPrice, domain.CodeValidation},
		{ErrPastStartDate, domain.CodeValidation},
		{ErrBookingOverlap, domain.CodeConflict},
		{ErrBookingNotFound, domain.CodeNotFound},
		{ErrUnauthorized, domain.CodeForbidden},
		{ErrInvalidStatus, domain.CodeInvalidState},
		{ErrInvalidTransition, domain.CodeInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("%w: booking 3", tt.err)
			assert.Equal(t, tt.code, domain.CodeOf(wrapped))
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
	assert.Equal(t, "booking not found", ErrBookingNotFound.Error())
}
