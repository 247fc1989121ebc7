package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/verbalink/verbalink-api/pkg/config"
)

// CallObserver records the latency and outcome of provider calls.
type CallObserver interface {
	ObserveExternalCall(dependency string, err error, duration time.Duration)
}

// Client talks to the video provider's server-to-server OAuth API. It is safe
// for concurrent use; the access token is the only mutable state.
type Client struct {
	accountID    string
	clientID     string
	clientSecret string
	baseURL      string
	tokenURL     string
	http         *http.Client
	metrics      CallObserver
	logger       *zap.Logger

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// Meeting is the credential set the provider returns for a created room.
type Meeting struct {
	ID       string `json:"id"`
	JoinURL  string `json:"join_url"`
	StartURL string `json:"start_url"`
	Password string `json:"password"`
}

// CreateMeetingInput describes the room to provision. RequestKey is a
// client-supplied idempotency key the provider stores in the meeting's
// tracking fields so a timed-out create can be found again.
type CreateMeetingInput struct {
	Topic           string
	StartTime       time.Time
	DurationMinutes int
	RequestKey      string
}

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("video provider returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the error is worth retrying: timeouts,
// connection failures, 429 and 5xx responses.
func Transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	// Anything that never produced an HTTP status is a network-class failure.
	return err != nil
}

// New constructs a provider client from config. metrics may be nil.
func New(cfg config.ZoomConfig, metrics CallObserver, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		accountID:    cfg.AccountID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		http:         &http.Client{Timeout: cfg.CallTimeout},
		metrics:      metrics,
		logger:       logger,
	}
}

// CreateMeeting provisions a meeting room and returns its credentials.
func (c *Client) CreateMeeting(ctx context.Context, in CreateMeetingInput) (*Meeting, error) {
	payload := map[string]interface{}{
		"topic":      in.Topic,
		"type":       2,
		"start_time": in.StartTime.UTC().Format(time.RFC3339),
		"duration":   in.DurationMinutes,
		"settings": map[string]interface{}{
			"join_before_host": false,
			"waiting_room":     true,
		},
		"tracking_fields": []map[string]string{
			{"field": "request_key", "value": in.RequestKey},
		},
	}

	var meeting Meeting
	if err := c.do(ctx, http.MethodPost, "/users/me/meetings", payload, &meeting); err != nil {
		return nil, err
	}
	return &meeting, nil
}

// FindMeetingByRequestKey looks up a meeting previously created with the
// given request key. Returns (nil, nil) when no such meeting exists.
func (c *Client) FindMeetingByRequestKey(ctx context.Context, requestKey string) (*Meeting, error) {
	path := "/users/me/meetings?tracking_field=request_key&tracking_value=" + url.QueryEscape(requestKey)
	var result struct {
		Meetings []Meeting `json:"meetings"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if len(result.Meetings) == 0 {
		return nil, nil
	}
	return &result.Meetings[0], nil
}

// DeleteMeeting removes a provisioned meeting room.
func (c *Client) DeleteMeeting(ctx context.Context, meetingID string) error {
	return c.do(ctx, http.MethodDelete, "/meetings/"+url.PathEscape(meetingID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, dest interface{}) error {
	start := time.Now()
	err := c.call(ctx, method, path, payload, dest)
	if c.metrics != nil {
		c.metrics.ObserveExternalCall("vp", err, time.Since(start))
	}
	return err
}

func (c *Client) call(ctx context.Context, method, path string, payload, dest interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal provider payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("video provider request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// accessToken returns a cached client-credentials token, refreshing it at
// least 60 seconds before expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		token := c.token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", c.accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("video provider token request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	c.logger.Debug("video provider token refreshed", zap.Time("expiry", c.tokenExpiry))

	return c.token, nil
}
