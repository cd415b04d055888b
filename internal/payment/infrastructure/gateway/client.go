package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rsharma5190/Payment-Tracking-Service/internal/metrics"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/application"
	"github.com/rsharma5190/Payment-Tracking-Service/internal/payment/domain"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
)

// Client talks to the external payment gateway. Transient failures
// (network errors, timeouts, 5xx) are retried with exponential backoff up
// to the attempt budget; 4xx responses are never retried.
type Client struct {
	log         *slog.Logger
	baseURL     string
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

func NewClient(log *slog.Logger, baseURL string, opts ...Option) *Client {
	c := &Client{
		log:         log,
		baseURL:     baseURL,
		client:      &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitRequest struct {
	SenderAccount   string  `json:"sender_account"`
	ReceiverAccount string  `json:"receiver_account"`
	Amount          float64 `json:"amount"`
	Memo            string  `json:"memo,omitempty"`
}

type submitResponse struct {
	ConfirmationID string    `json:"confirmation_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type statusResponse struct {
	ConfirmationID string    `json:"confirmation_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Submit posts the payment to the gateway. The returned result carries the
// attempt count even on failure, so callers can account for every call made.
func (c *Client) Submit(ctx context.Context, sub application.Submission) (application.SubmitResult, error) {
	body, err := json.Marshal(submitRequest{
		SenderAccount:   sub.SenderAccount,
		ReceiverAccount: sub.ReceiverAccount,
		Amount:          sub.Amount,
		Memo:            sub.Memo,
	})
	if err != nil {
		return application.SubmitResult{}, err
	}

	res := application.SubmitResult{}
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res.Attempts = attempt

		var sr submitResponse
		err := c.do(ctx, http.MethodPost, "/submit", body, &sr)
		if err == nil {
			status, convErr := mapStatus(sr.Status)
			if convErr != nil {
				metrics.GatewayCalls.WithLabelValues("submit", "bad_status").Inc()
				return res, convErr
			}
			metrics.GatewayCalls.WithLabelValues("submit", "ok").Inc()
			res.ConfirmationID = sr.ConfirmationID
			res.Status = status
			res.CreatedAt = sr.CreatedAt
			return res, nil
		}

		if isPermanent(err) {
			metrics.GatewayCalls.WithLabelValues("submit", "permanent").Inc()
			return res, err
		}

		metrics.GatewayCalls.WithLabelValues("submit", "transient").Inc()
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoff(attempt)
		c.log.Warn("gateway submit failed, backing off",
			"attempt", attempt, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return res, fmt.Errorf("%w: %v", application.ErrTransient, ctx.Err())
		case <-time.After(delay):
		}
	}
	return res, lastErr
}

// ListStatus fetches the gateway's full status list. Unlike Submit it is
// not retried here: a failed fetch abandons the reconciliation pass and the
// next tick retries anyway.
func (c *Client) ListStatus(ctx context.Context) ([]application.StatusRecord, error) {
	var list []statusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &list); err != nil {
		metrics.GatewayCalls.WithLabelValues("list_status", "error").Inc()
		return nil, err
	}
	metrics.GatewayCalls.WithLabelValues("list_status", "ok").Inc()

	records := make([]application.StatusRecord, 0, len(list))
	for _, sr := range list {
		status, err := mapStatus(sr.Status)
		if err != nil {
			// One bad entry must not poison the whole pass.
			c.log.Error("dropping gateway record with unknown status",
				"confirmation_id", sr.ConfirmationID, "status", sr.Status)
			continue
		}
		records = append(records, application.StatusRecord{
			ConfirmationID: sr.ConfirmationID,
			Status:         status,
			CreatedAt:      sr.CreatedAt,
			UpdatedAt:      sr.UpdatedAt,
		})
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", application.ErrPermanent, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", application.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", application.ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: gateway returned %d: %s", application.ErrPermanent, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", application.ErrTransient, err)
	}
	return nil
}

// backoff doubles the base delay per attempt, capped at maxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	return min(c.baseDelay*time.Duration(1<<(attempt-1)), c.maxDelay)
}

func isPermanent(err error) bool {
	return errors.Is(err, application.ErrPermanent)
}

// mapStatus validates the gateway's status vocabulary at the boundary so
// raw strings never reach the domain.
func mapStatus(raw string) (domain.Status, error) {
	switch s := domain.Status(raw); s {
	case domain.StatusPending, domain.StatusSettled, domain.StatusReturned, domain.StatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown gateway status %q", application.ErrPermanent, raw)
}
