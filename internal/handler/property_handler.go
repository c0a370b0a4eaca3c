package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/staysure/service-reservation/internal/application"
	"github.com/staysure/service-reservation/internal/platform/auth"
	"github.com/staysure/service-reservation/internal/platform/middleware"
	"github.com/staysure/service-reservation/internal/platform/response"
)

// PropertyHandler serves per-property views of the ledger.
type PropertyHandler struct {
	service *application.BookingService
}

// NewPropertyHandler creates a new PropertyHandler.
func NewPropertyHandler(service *application.BookingService) *PropertyHandler {
	return &PropertyHandler{service: service}
}

// AvailabilityQuery holds the interval checked by GET .../availability.
type AvailabilityQuery struct {
	Start time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00" binding:"required"`
	End   time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00" binding:"required"`
}

// AvailabilityDTO is the availability answer.
type AvailabilityDTO struct {
	PropertyID string    `json:"property_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Available  bool      `json:"available"`
}

// RegisterRoutes registers property routes. Availability is public.
func (h *PropertyHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	properties := r.Group("/api/v1/properties/:propertyId")
	{
		properties.GET("/availability", h.CheckAvailability)
		properties.GET("/bookings", middleware.AuthMiddleware(jwtManager), h.ListPropertyBookings)
	}
}

// CheckAvailability handles GET /api/v1/properties/:propertyId/availability.
func (h *PropertyHandler) CheckAvailability(c *gin.Context) {
	var q AvailabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	propertyID := c.Param("propertyId")
	available, err := h.service.CheckAvailability(c.Request.Context(), propertyID, q.Start, q.End)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, AvailabilityDTO{
		PropertyID: propertyID,
		Start:      q.Start.UTC(),
		End:        q.End.UTC(),
		Available:  available,
	})
}

// ListPropertyBookings handles GET /api/v1/properties/:propertyId/bookings.
func (h *PropertyHandler) ListPropertyBookings(c *gin.Context) {
	result, err := h.service.GetPropertyBookings(c.Request.Context(), c.Param("propertyId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
