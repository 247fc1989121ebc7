package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbalink/verbalink-api/internal/models"
	"github.com/verbalink/verbalink-api/internal/service"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
)

type paymentOrchestratorMock struct {
	initiateResp *service.PaymentIntentResult
	initiateErr  error
	webhookErr   error
	methodsResp  []models.PaymentMethod
	methodsErr   error
	receiptResp  []byte
	receiptErr   error

	initiateCalled bool
	webhookCalled  bool

	lastInitiate  service.InitiatePaymentRequest
	lastPayload   []byte
	lastSignature string
	lastPaymentID string
}

func (m *paymentOrchestratorMock) InitiatePayment(ctx context.Context, claims *models.JWTClaims, req service.InitiatePaymentRequest) (*service.PaymentIntentResult, error) {
	m.initiateCalled = true
	m.lastInitiate = req
	return m.initiateResp, m.initiateErr
}

func (m *paymentOrchestratorMock) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	m.webhookCalled = true
	m.lastPayload = payload
	m.lastSignature = signatureHeader
	return m.webhookErr
}

func (m *paymentOrchestratorMock) ListMethods(ctx context.Context, claims *models.JWTClaims) ([]models.PaymentMethod, error) {
	return m.methodsResp, m.methodsErr
}

func (m *paymentOrchestratorMock) GetReceipt(ctx context.Context, claims *models.JWTClaims, paymentID string) ([]byte, error) {
	m.lastPaymentID = paymentID
	return m.receiptResp, m.receiptErr
}

func TestPaymentHandlerInitiate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentOrchestratorMock{
		initiateResp: &service.PaymentIntentResult{
			PaymentID:    "payment-1",
			ClientSecret: "pi_secret",
			Status:       models.PaymentStatusRequiresPayment,
		},
	}
	handler := NewPaymentHandler(mockSvc)

	payload, _ := json.Marshal(service.InitiatePaymentRequest{BookingID: "booking-1", SaveMethod: true})
	w := httptest.NewRecorder()
	c, _ := studentContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/payments/intent", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Initiate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.initiateCalled)
	assert.Equal(t, "booking-1", mockSvc.lastInitiate.BookingID)
	assert.True(t, mockSvc.lastInitiate.SaveMethod)
}

func TestPaymentHandlerInitiateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentOrchestratorMock{}
	handler := NewPaymentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := studentContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/payments/intent", bytes.NewBufferString(`{"booking_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Initiate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.initiateCalled)
}

func TestPaymentHandlerWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentOrchestratorMock{}
	handler := NewPaymentHandler(mockSvc)

	body := `{"type":"payment_intent.succeeded"}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	c.Request = req

	handler.Webhook(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.webhookCalled)
	assert.Equal(t, body, string(mockSvc.lastPayload))
	assert.Equal(t, "t=1,v1=abc", mockSvc.lastSignature)
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestPaymentHandlerWebhookBadSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentOrchestratorMock{webhookErr: appErrors.ErrBadSignature}
	handler := NewPaymentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(`{}`))
	c.Request = req

	handler.Webhook(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandlerReceipt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentOrchestratorMock{receiptResp: []byte("%PDF-1.4 fake")}
	handler := NewPaymentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := studentContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/payments/payment-1/receipt", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "payment-1"}}

	handler.Receipt(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payment-1", mockSvc.lastPaymentID)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipt.pdf")
	assert.Equal(t, "%PDF-1.4 fake", w.Body.String())
}

func TestPaymentHandlerReceiptUnsettled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &paymentOrchestratorMock{receiptErr: appErrors.ErrConflict}
	handler := NewPaymentHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := studentContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/payments/payment-1/receipt", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "payment-1"}}

	handler.Receipt(c)
	require.Equal(t, http.StatusConflict, w.Code)
}
