// Package automation implements the HTTP client for the browser worker.
package automation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
	"apply_server/pkg/httputil"
	"apply_server/pkg/logger"
)

// Per-call deadlines. Session starts drive a full portal flow.
const (
	startTimeout  = 120 * time.Second
	pollTimeout   = 10 * time.Second
	checkTimeout  = 120 * time.Second
	cancelTimeout = 10 * time.Second
	healthTimeout = 5 * time.Second
)

// Client talks to the external browser automation worker. Every call carries
// the shared bearer secret.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	log     *logger.Logger
}

var _ out.BrowserAutomation = (*Client)(nil)

func NewClient(baseURL, secret string) *Client {
	log := logger.WithComponent("automation")
	cbSettings := gobreaker.Settings{
		Name:        "browser-worker",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    httputil.BrowserWorkerClient(),
		cb:      gobreaker.NewCircuitBreaker(cbSettings),
		log:     log,
	}
}

func (c *Client) Start(ctx context.Context, req *out.StartRequest) (*out.StartResponse, error) {
	var resp out.StartResponse
	if err := c.do(ctx, http.MethodPost, "/api/automation/start", req, &resp, startTimeout); err != nil {
		return nil, err
	}
	if !validSessionStatus(resp.Status) {
		return nil, apperr.Invariant(fmt.Sprintf("unexpected automation status %q", resp.Status))
	}
	return &resp, nil
}

func (c *Client) PollStatus(ctx context.Context, sessionID string) (*out.StatusResponse, error) {
	var resp out.StatusResponse
	path := "/api/automation/status/" + sessionID
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, pollTimeout); err != nil {
		return nil, err
	}
	if !validSessionStatus(resp.Status) {
		return nil, apperr.Invariant(fmt.Sprintf("unexpected automation status %q", resp.Status))
	}
	return &resp, nil
}

func (c *Client) CheckStatus(ctx context.Context, url string) (*out.CheckStatusResponse, error) {
	var resp out.CheckStatusResponse
	body := map[string]string{"url": url}
	if err := c.do(ctx, http.MethodPost, "/api/automation/check-status", body, &resp, checkTimeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Cancel(ctx context.Context, sessionID string) error {
	path := "/api/automation/cancel/" + sessionID
	return c.do(ctx, http.MethodPost, path, nil, nil, cancelTimeout)
}

func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp, healthTimeout); err != nil {
		return err
	}
	if !resp.OK {
		return apperr.ExternalUnavailable("browser-worker", nil)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.InternalWithError(err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return apperr.InternalWithError(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	_, cbErr := c.cb.Execute(func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, &nonCircuitError{apperr.Unauthorized("browser worker rejected credentials")}
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("browser worker returned %d: %s", resp.StatusCode, truncate(string(data), 200))
		}
		if result != nil {
			if err := json.Unmarshal(data, result); err != nil {
				return nil, &nonCircuitError{apperr.InternalWithError(err)}
			}
		}
		return nil, nil
	})

	if cbErr == nil {
		return nil
	}
	if nce, ok := cbErr.(*nonCircuitError); ok {
		return nce.err
	}
	if ctx.Err() != nil {
		return apperr.Timeout("browser worker " + path)
	}
	return apperr.ExternalUnavailable("browser-worker", cbErr)
}

type nonCircuitError struct{ err error }

func (e *nonCircuitError) Error() string { return e.err.Error() }
func (e *nonCircuitError) Unwrap() error { return e.err }

func validSessionStatus(s string) bool {
	switch s {
	case out.AutomationStarted, out.AutomationCompleted,
		out.AutomationNeedsAuthentication, out.AutomationLoginRequired,
		out.AutomationManualActionRequired, out.AutomationPendingVerification:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
