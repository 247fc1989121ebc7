package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/pkg/config"
)

// Template identifiers for core notifications.
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingCancelled = "booking_cancelled"
	TemplatePaymentSucceeded = "payment_succeeded"
	TemplateRefundProcessed  = "refund_processed"
	TemplateRescheduled      = "booking_rescheduled"
)

// CallObserver records the latency and outcome of notifier calls.
type CallObserver interface {
	ObserveExternalCall(dependency string, err error, duration time.Duration)
}

// Client delivers templated emails through the outbound notifier. Calls are
// fire-and-forget from the caller's point of view: failures are logged and
// retried on the job queue, never surfaced.
type Client struct {
	apiKey    string
	baseURL   string
	signinURL string
	http      *http.Client
	metrics   CallObserver
	logger    *zap.Logger
}

// Message is one templated send.
type Message struct {
	TemplateID string            `json:"template_id"`
	To         string            `json:"to"`
	Params     map[string]string `json:"params"`
}

// New constructs the notifier client. metrics may be nil.
func New(cfg config.NotifierConfig, metrics CallObserver, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		signinURL: cfg.SigninURL,
		http:      &http.Client{Timeout: cfg.CallTimeout},
		metrics:   metrics,
		logger:    logger,
	}
}

// Send delivers one message. Params are merged with the platform's sign-in
// link so every template can render a call-to-action.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.Params == nil {
		msg.Params = map[string]string{}
	}
	if _, ok := msg.Params["signin_url"]; !ok && c.signinURL != "" {
		msg.Params["signin_url"] = c.signinURL
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mail/send", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(start, err)
		return fmt.Errorf("notifier request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("notifier returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		c.observe(start, err)
		return err
	}
	c.observe(start, nil)

	c.logger.Debug("notification sent",
		zap.String("template", msg.TemplateID),
		zap.Duration("latency", time.Since(start)))
	return nil
}

func (c *Client) observe(start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveExternalCall("on", err, time.Since(start))
	}
}
