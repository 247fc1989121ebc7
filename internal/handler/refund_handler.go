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

type refundOrchestrator interface {
	RequestRefund(ctx context.Context, claims *models.JWTClaims, req service.RefundRequestInput) (*models.RefundRequest, error)
	ResolveRefund(ctx context.Context, claims *models.JWTClaims, requestID string, req service.ResolveRefundInput) (*models.RefundRequest, error)
}

// RefundHandler exposes refund request and resolution endpoints.
type RefundHandler struct {
	service refundOrchestrator
}

// NewRefundHandler constructs the handler.
func NewRefundHandler(svc refundOrchestrator) *RefundHandler {
	return &RefundHandler{service: svc}
}

// Request godoc
// @Summary Request a refund for a paid booking
// @Tags Refunds
// @Accept json
// @Produce json
// @Param payload body service.RefundRequestInput true "Refund payload"
// @Success 200 {object} response.Envelope
// @Router /refunds [post]
func (h *RefundHandler) Request(c *gin.Context) {
	var req service.RefundRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refund payload"))
		return
	}
	request, err := h.service.RequestRefund(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		// An auto-approved request whose processor call failed still
		// exists; return it alongside the error context.
		if request != nil {
			response.ErrorWithMeta(c, err, map[string]interface{}{"refund_request": request})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Resolve godoc
// @Summary Administrator approves or rejects a refund in review
// @Tags Refunds
// @Accept json
// @Produce json
// @Param id path string true "Refund request ID"
// @Param payload body service.ResolveRefundInput true "Resolution payload"
// @Success 200 {object} response.Envelope
// @Router /admin/refunds/{id} [post]
func (h *RefundHandler) Resolve(c *gin.Context) {
	var req service.ResolveRefundInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolution payload"))
		return
	}
	request, err := h.service.ResolveRefund(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		if request != nil {
			response.ErrorWithMeta(c, err, map[string]interface{}{"refund_request": request})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
