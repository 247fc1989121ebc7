package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/internal/service"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
	"github.com/verbalink/verbalink-api/pkg/response"
)

type teacherSurface interface {
	ReplaceAvailability(ctx context.Context, claims *models.JWTClaims, inputs []service.AvailabilityRuleInput) ([]models.AvailabilityRule, error)
	ListAvailability(ctx context.Context, teacherID string) ([]models.AvailabilityRule, error)
	GetEarnings(ctx context.Context, claims *models.JWTClaims) (*service.EarningsStatement, error)
	ExportEarningsCSV(ctx context.Context, claims *models.JWTClaims) ([]byte, error)
}

// TeacherHandler exposes availability management and the earnings ledger.
type TeacherHandler struct {
	service teacherSurface
}

// NewTeacherHandler constructs the handler.
func NewTeacherHandler(svc teacherSurface) *TeacherHandler {
	return &TeacherHandler{service: svc}
}

type replaceAvailabilityRequest struct {
	Rules []service.AvailabilityRuleInput `json:"rules" binding:"required"`
}

// ReplaceAvailability godoc
// @Summary Replace the caller's full availability rule set
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body replaceAvailabilityRequest true "Availability rules"
// @Success 200 {object} response.Envelope
// @Router /teachers/me/availability [put]
func (h *TeacherHandler) ReplaceAvailability(c *gin.Context) {
	var req replaceAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	rules, err := h.service.ReplaceAvailability(c.Request.Context(), claimsFromContext(c), req.Rules)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// ListAvailability godoc
// @Summary List the caller's availability rules
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/me/availability [get]
func (h *TeacherHandler) ListAvailability(c *gin.Context) {
	claims := claimsFromContext(c)
	rules, err := h.service.ListAvailability(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// Earnings godoc
// @Summary Teacher earnings balance and per-session history
// @Tags Teachers
// @Produce json
// @Param format query string false "Set to csv for a statement download"
// @Success 200 {object} response.Envelope
// @Router /teachers/me/earnings [get]
func (h *TeacherHandler) Earnings(c *gin.Context) {
	claims := claimsFromContext(c)
	if c.Query("format") == "csv" {
		data, err := h.service.ExportEarningsCSV(c.Request.Context(), claims)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="earnings.csv"`)
		c.Data(http.StatusOK, "text/csv", data)
		return
	}
	statement, err := h.service.GetEarnings(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statement, nil)
}
