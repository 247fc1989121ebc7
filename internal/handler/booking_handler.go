package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/internal/service"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
	"github.com/verbalink/verbalink-api/pkg/response"
)

type bookingCore interface {
	Create(ctx context.Context, claims *models.JWTClaims, req service.CreateBookingRequest) (*models.Booking, error)
	Confirm(ctx context.Context, claims *models.JWTClaims, bookingID string) (*models.Booking, error)
	Cancel(ctx context.Context, claims *models.JWTClaims, bookingID, reason string) (*models.Booking, error)
	Reschedule(ctx context.Context, claims *models.JWTClaims, bookingID string, newStart time.Time) (*models.Booking, error)
	Complete(ctx context.Context, claims *models.JWTClaims, bookingID string) (*models.Booking, error)
	Get(ctx context.Context, claims *models.JWTClaims, bookingID string) (*models.Booking, error)
	List(ctx context.Context, claims *models.JWTClaims, status models.BookingStatus, page, pageSize int) ([]models.BookingDetail, int, error)
}

// BookingHandler exposes the booking lifecycle endpoints.
type BookingHandler struct {
	service bookingCore
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(svc bookingCore) *BookingHandler {
	return &BookingHandler{service: svc}
}

// Create godoc
// @Summary Create a booking in PENDING
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body service.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid booking payload"))
		return
	}
	booking, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Get godoc
// @Summary Fetch one booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// List godoc
// @Summary List the caller's bookings
// @Tags Bookings
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	status := models.BookingStatus(c.Query("status"))

	details, total, err := h.service.List(c.Request.Context(), claimsFromContext(c), status, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	})
}

// Confirm godoc
// @Summary Teacher confirms a pending booking, provisioning the meeting
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/confirm [post]
func (h *BookingHandler) Confirm(c *gin.Context) {
	booking, err := h.service.Confirm(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// Cancel godoc
// @Summary Cancel a pending or confirmed booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body cancelBookingRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req cancelBookingRequest
	_ = c.ShouldBindJSON(&req)
	booking, err := h.service.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

type rescheduleBookingRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
}

// Reschedule godoc
// @Summary Move a booking to a new slot via a replacement row
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body rescheduleBookingRequest true "New start time"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/reschedule [post]
func (h *BookingHandler) Reschedule(c *gin.Context) {
	var req rescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}
	booking, err := h.service.Reschedule(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.StartTime)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Complete godoc
// @Summary Mark a paid booking completed after the session window
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/complete [post]
func (h *BookingHandler) Complete(c *gin.Context) {
	booking, err := h.service.Complete(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}
