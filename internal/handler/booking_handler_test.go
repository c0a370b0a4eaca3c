package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/staysure/service-reservation/internal/application"
	"github.com/staysure/service-reservation/internal/platform/auth"
	"github.com/staysure/service-reservation/internal/platform/response"
	"github.com/staysure/service-reservation/internal/repository"
)

type envelope[T any] struct {
	Success bool                `json:"success"`
	Data    T                   `json:"data"`
	Error   *response.ErrorBody `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

type testServer struct {
	router *gin.Engine
	jwt    *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := func() time.Time { return time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC) }
	svc := application.NewBookingService(repository.NewMemoryBookingRepository(), nil, zap.NewNop(), application.WithClock(clock))
	require.NoError(t, svc.Initialize(context.Background()))

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	router := gin.New()
	NewBookingHandler(svc).RegisterRoutes(&router.RouterGroup, jwtManager)
	NewPropertyHandler(svc).RegisterRoutes(&router.RouterGroup, jwtManager)
	NewAdminBookingHandler(svc).RegisterRoutes(&router.RouterGroup, jwtManager)

	return &testServer{router: router, jwt: jwtManager}
}

func (s *testServer) do(t *testing.T, method, path, userID string, role auth.Role, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.jwt.GenerateAccessToken(userID, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func createBody(start, end string, price interface{}) map[string]interface{} {
	return map[string]interface{}{
		"property_id": "villa",
		"start":       start,
		"end":         end,
		"total_price": price,
	}
}

func TestCreateBooking_HTTP(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/bookings", "alice", auth.RoleGuest,
		createBody("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", 100))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decode[application.BookingDTO](t, w)
	assert.True(t, env.Success)
	assert.Equal(t, uint64(0), env.Data.ID)
	assert.Equal(t, "alice", env.Data.UserID)
	assert.Equal(t, "pending", env.Data.Status)
	assert.Equal(t, "100", env.Data.TotalPrice.String())

	w = s.do(t, http.MethodPost, "/api/v1/bookings", "bob", auth.RoleGuest,
		createBody("2024-01-01T12:00:00Z", "2024-01-03T00:00:00Z", "100"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decode[json.RawMessage](t, w).Error.Code)
}

func TestCreateBooking_HTTPErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		userID string
		role   auth.Role
		body   interface{}
		status int
	}{
		{"no token", "", "", createBody("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", 1), http.StatusUnauthorized},
		{"operator cannot book", "op", auth.RoleOperator, createBody("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", 1), http.StatusForbidden},
		{"missing property", "alice", auth.RoleGuest, map[string]interface{}{"start": "2024-01-01T00:00:00Z"}, http.StatusBadRequest},
		{"reversed dates", "alice", auth.RoleGuest, createBody("2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z", 1), http.StatusBadRequest},
		{"zero price", "alice", auth.RoleGuest, createBody("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", 0), http.StatusBadRequest},
		{"past start", "alice", auth.RoleGuest, createBody("2023-01-01T00:00:00Z", "2024-01-02T00:00:00Z", 1), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/bookings", tt.userID, tt.role, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestBookingLifecycle_HTTP(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/bookings", "alice", auth.RoleGuest,
		createBody("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", 100))
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[application.BookingDTO](t, w).Data.ID
	path := fmt.Sprintf("/api/v1/bookings/%d", id)

	w = s.do(t, http.MethodPatch, path+"/status", "alice", auth.RoleGuest, map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, path+"/status", "op-1", auth.RoleOperator, map[string]string{"status": "completed"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPatch, path+"/status", "op-1", auth.RoleOperator, map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, path+"/status", "op-1", auth.RoleOperator, map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "confirmed", decode[application.BookingDTO](t, w).Data.Status)

	w = s.do(t, http.MethodPut, path+"/escrow", "escrow-svc", auth.RoleEscrow, map[string]string{"escrow_ref": "esc-9"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dto := decode[application.BookingDTO](t, w).Data
	require.NotNil(t, dto.EscrowRef)
	assert.Equal(t, "esc-9", *dto.EscrowRef)

	w = s.do(t, http.MethodPut, path+"/escrow", "escrow-svc", auth.RoleEscrow, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, path+"/cancel", "mallory", auth.RoleGuest, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, path+"/cancel", "alice", auth.RoleGuest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[application.BookingDTO](t, w).Data.Status)

	w = s.do(t, http.MethodPost, path+"/cancel", "alice", auth.RoleGuest, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodGet, path, "alice", auth.RoleGuest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", decode[application.BookingDTO](t, w).Data.Status)
}

func TestGetBooking_HTTPNotFound(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/bookings/12", "alice", auth.RoleGuest, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/bookings/abc", "alice", auth.RoleGuest, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPropertyRoutes_HTTP(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/bookings", "alice", auth.RoleGuest,
		createBody("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", 100))
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/properties/villa/availability?start=2024-01-01T12:00:00Z&end=2024-01-03T00:00:00Z", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[AvailabilityDTO](t, w).Data.Available)

	w = s.do(t, http.MethodGet, "/api/v1/properties/villa/availability?start=2024-01-02T00:00:00Z&end=2024-01-03T00:00:00Z", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[AvailabilityDTO](t, w).Data.Available)

	w = s.do(t, http.MethodGet, "/api/v1/properties/villa/availability?start=2024-01-02T00:00:00Z", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/properties/villa/bookings", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/properties/villa/bookings", "bob", auth.RoleGuest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]application.BookingDTO](t, w).Data, 1)

	w = s.do(t, http.MethodGet, "/api/v1/properties/empty/bookings", "bob", auth.RoleGuest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]application.BookingDTO](t, w).Data)
}

func TestAdminRoutes_HTTP(t *testing.T) {
	s := newTestServer(t)

	for i := 1; i <= 3; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/bookings", "alice", auth.RoleGuest,
			createBody(fmt.Sprintf("2024-01-0%dT00:00:00Z", i), fmt.Sprintf("2024-01-0%dT00:00:00Z", i+1), 100))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/v1/admin/bookings?limit=2", "alice", auth.RoleGuest, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/bookings?limit=2", "root", auth.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]application.BookingDTO](t, w)
	assert.Len(t, list.Data, 2)
	require.NotNil(t, list.Meta)
	assert.Equal(t, int64(3), list.Meta.Total)
	assert.Equal(t, 2, list.Meta.TotalPages)

	w = s.do(t, http.MethodGet, "/api/v1/admin/stats/bookings", "root", auth.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[application.BookingStatsDTO](t, w).Data
	assert.Equal(t, int64(3), stats.TotalBookings)

	w = s.do(t, http.MethodPost, "/api/v1/admin/ledger/initialize", "root", auth.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
}
