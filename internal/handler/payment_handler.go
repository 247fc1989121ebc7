package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/internal/service"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
	"github.com/verbalink/verbalink-api/pkg/response"
)

type paymentOrchestrator interface {
	InitiatePayment(ctx context.Context, claims *models.JWTClaims, req service.InitiatePaymentRequest) (*service.PaymentIntentResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	ListMethods(ctx context.Context, claims *models.JWTClaims) ([]models.PaymentMethod, error)
	GetReceipt(ctx context.Context, claims *models.JWTClaims, paymentID string) ([]byte, error)
}

// PaymentHandler exposes payment endpoints including the processor webhook.
type PaymentHandler struct {
	service paymentOrchestrator
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(svc paymentOrchestrator) *PaymentHandler {
	return &PaymentHandler{service: svc}
}

// Initiate godoc
// @Summary Initiate a charge for a confirmed booking
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.InitiatePaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Router /payments/intent [post]
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	result, err := h.service.InitiatePayment(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Webhook godoc
// @Summary Card processor webhook receiver
// @Tags Payments
// @Accept json
// @Success 200 {object} response.Envelope
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable webhook body"))
		return
	}
	if err := h.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"received": true}, nil)
}

// ListMethods godoc
// @Summary List the caller's saved payment methods
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payments/methods [get]
func (h *PaymentHandler) ListMethods(c *gin.Context) {
	methods, err := h.service.ListMethods(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, methods, nil)
}

// Receipt godoc
// @Summary Download the PDF receipt for a settled payment
// @Tags Payments
// @Produce application/pdf
// @Param id path string true "Payment ID"
// @Success 200 {file} binary
// @Router /payments/{id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	pdf, err := h.service.GetReceipt(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="receipt.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
