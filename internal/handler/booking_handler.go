package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/staysure/service-reservation/internal/application"
	bookingDomain "github.com/staysure/service-reservation/internal/domain/booking"
	"github.com/staysure/service-reservation/internal/platform/auth"
	"github.com/staysure/service-reservation/internal/platform/middleware"
	"github.com/staysure/service-reservation/internal/platform/response"
)

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service *application.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// UpdateStatusRequest is the body of PATCH /api/v1/bookings/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetEscrowRequest is the body of PUT /api/v1/bookings/:id/escrow.
type SetEscrowRequest struct {
	EscrowRef string `json:"escrow_ref" binding:"required"`
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	privileged := middleware.RequireRole(auth.RoleOperator, auth.RoleEscrow, auth.RoleAdmin)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.POST("", middleware.RequireRole(auth.RoleGuest, auth.RoleAdmin), h.CreateBooking)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.PATCH("/:id/status", privileged, h.UpdateStatus)
		bookings.PUT("/:id/escrow", privileged, h.SetEscrowID)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateBooking(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel. Only the owner of record succeeds.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	result, err := h.service.CancelBooking(c.Request.Context(), bookingID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateStatus handles PATCH /api/v1/bookings/:id/status.
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	status, err := bookingDomain.ParseBookingStatus(req.Status)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	actor, ok := privilegedActor(c)
	if !ok {
		return
	}

	result, err := h.service.UpdateStatus(c.Request.Context(), bookingID, status, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// SetEscrowID handles PUT /api/v1/bookings/:id/escrow.
func (h *BookingHandler) SetEscrowID(c *gin.Context) {
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	var req SetEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	actor, ok := privilegedActor(c)
	if !ok {
		return
	}

	result, err := h.service.SetEscrowID(c.Request.Context(), bookingID, req.EscrowRef, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

func parseBookingID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return 0, false
	}
	return id, true
}

func privilegedActor(c *gin.Context) (bookingDomain.PrivilegedActor, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return bookingDomain.PrivilegedActor{}, false
	}
	role, ok := middleware.GetUserRole(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return bookingDomain.PrivilegedActor{}, false
	}
	return bookingDomain.PrivilegedActor{ID: userID, Role: bookingDomain.ActorRole(role)}, true
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}
