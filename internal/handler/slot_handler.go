package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verbalink/verbalink-api/internal/models"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
	"github.com/verbalink/verbalink-api/pkg/response"
)

type slotLister interface {
	ListSlots(ctx context.Context, teacherID, gigID, date string) ([]models.Slot, error)
}

// SlotHandler exposes the slot listing endpoint.
type SlotHandler struct {
	service slotLister
}

// NewSlotHandler constructs the handler.
func NewSlotHandler(svc slotLister) *SlotHandler {
	return &SlotHandler{service: svc}
}

// List godoc
// @Summary List bookable slots for a teacher's gig on a date
// @Tags Slots
// @Produce json
// @Param teacher_id query string true "Teacher ID"
// @Param gig_id query string true "Gig ID"
// @Param date query string true "Date (YYYY-MM-DD, teacher-local)"
// @Success 200 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	teacherID := c.Query("teacher_id")
	gigID := c.Query("gig_id")
	date := c.Query("date")
	if teacherID == "" || gigID == "" || date == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teacher_id, gig_id and date are required"))
		return
	}
	slots, err := h.service.ListSlots(c.Request.Context(), teacherID, gigID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
