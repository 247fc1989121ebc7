package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/pkg/config"
	appErrors "github.com/verbalink/verbalink-api/pkg/errors"
)

// CallObserver records the latency and outcome of processor calls.
type CallObserver interface {
	ObserveExternalCall(dependency string, err error, duration time.Duration)
}

// Client wraps the card processor SDK. The SDK client itself is stateless;
// this wrapper pins call deadlines and keeps the webhook secret out of
// handler code.
type Client struct {
	api           *client.API
	webhookSecret string
	callTimeout   time.Duration
	metrics       CallObserver
	logger        *zap.Logger
}

// Intent is the subset of a payment intent the core cares about.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Refund is the result of a processor refund call.
type Refund struct {
	ID     string
	Status string
}

// CreateIntentInput describes a charge to initiate.
type CreateIntentInput struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	ConfirmNow      bool
	Metadata        map[string]string
}

// New constructs the processor client. metrics may be nil.
func New(cfg config.StripeConfig, metrics CallObserver, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Client{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		callTimeout:   cfg.CallTimeout,
		metrics:       metrics,
		logger:        logger,
	}
}

func (c *Client) observe(start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveExternalCall("cp", err, time.Since(start))
	}
}

// CreatePaymentIntent creates a payment intent for the given amount. When a
// saved payment method is supplied the intent is confirmed off-session in
// the same call.
func (c *Client) CreatePaymentIntent(ctx context.Context, in CreateIntentInput) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(in.Currency),
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}
	if in.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(in.PaymentMethodID)
	}
	if in.ConfirmNow {
		params.Confirm = stripe.Bool(true)
		params.OffSession = stripe.Bool(true)
	}

	start := time.Now()
	pi, err := c.api.PaymentIntents.New(params)
	c.observe(start, err)
	if err != nil {
		return nil, c.classify(err, "create payment intent")
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// RetrievePaymentIntent fetches the current state of an intent.
func (c *Client) RetrievePaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	start := time.Now()
	pi, err := c.api.PaymentIntents.Get(intentID, params)
	c.observe(start, err)
	if err != nil {
		return nil, c.classify(err, "retrieve payment intent")
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// CreateRefund refunds part or all of a charged intent.
func (c *Client) CreateRefund(ctx context.Context, intentID string, amountCents int64) (*Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amountCents),
	}
	params.Context = ctx
	start := time.Now()
	r, err := c.api.Refunds.New(params)
	c.observe(start, err)
	if err != nil {
		return nil, c.classify(err, "create refund")
	}
	return &Refund{ID: r.ID, Status: string(r.Status)}, nil
}

// VerifyWebhook checks the payload signature and returns the parsed event.
// Unverifiable payloads must never be processed.
func (c *Client) VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, c.webhookSecret)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrBadSignature.Code, appErrors.ErrBadSignature.Status, appErrors.ErrBadSignature.Message)
	}
	return &event, nil
}

// classify maps SDK errors onto the core's error kinds: card/validation
// errors surface directly, infrastructure failures become 503s.
func (c *Client) classify(err error, op string) error {
	if stripeErr, ok := err.(*stripe.Error); ok {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, stripeErr.Msg)
		}
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 {
			c.logger.Warn("card processor unavailable", zap.String("op", op), zap.Int("status", stripeErr.HTTPStatusCode))
			return appErrors.Wrap(err, appErrors.ErrPaymentUnavailable.Code, appErrors.ErrPaymentUnavailable.Status, appErrors.ErrPaymentUnavailable.Message)
		}
	}
	return appErrors.Wrap(err, appErrors.ErrPaymentUnavailable.Code, appErrors.ErrPaymentUnavailable.Status, appErrors.ErrPaymentUnavailable.Message)
}
