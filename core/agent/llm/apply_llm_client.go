// Package llm implements the rate-limited chat model gateway.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"apply_server/pkg/apperr"
	"apply_server/pkg/httputil"
	"apply_server/pkg/logger"
)

const DefaultModel = "gpt-4o-mini"

const (
	defaultMaxConcurrent = 8
	defaultRPM           = 60
	defaultMaxRetries    = 5
	retryBaseDelay       = 500 * time.Millisecond
)

type ClientConfig struct {
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSec     int
	MaxConcurrent  int
	RequestsPerMin int
	MaxRetries     int
}

// Client wraps the chat model provider with a process-wide concurrency
// semaphore, a per-minute token bucket and retry with jittered backoff.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	maxRetries  int

	sem     chan struct{}
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewClient(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = defaultRPM
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	timeout := 60 * time.Second
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	openaiCfg := openai.DefaultConfig(cfg.APIKey)
	openaiCfg.HTTPClient = httputil.OpenAIClient()

	return &Client{
		client:      openai.NewClientWithConfig(openaiCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		timeout:     timeout,
		maxRetries:  maxRetries,
		sem:         make(chan struct{}, maxConcurrent),
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		log:         logger.WithComponent("llm"),
	}
}

// acquire takes one semaphore slot and one rate token, in that order, so a
// queued caller does not burn budget while waiting for a slot.
func (c *Client) acquire(ctx context.Context) (release func(), err error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		<-c.sem
		return nil, err
	}
	return func() { <-c.sem }, nil
}

func (c *Client) Complete(ctx context.Context, caller, prompt string) (string, error) {
	return c.chat(ctx, caller, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, nil)
}

func (c *Client) CompleteWithSystem(ctx context.Context, caller, system, prompt string) (string, error) {
	return c.chat(ctx, caller, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, nil)
}

func (c *Client) CompleteJSON(ctx context.Context, caller, system, prompt string, out any) error {
	format := &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	content, err := c.chat(ctx, caller, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, format)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripCodeFence(content)), out); err != nil {
		return fmt.Errorf("malformed model JSON: %w", err)
	}
	return nil
}

func (c *Client) chat(ctx context.Context, caller string, messages []openai.ChatCompletionMessage, format *openai.ChatCompletionResponseFormat) (string, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if format != nil {
		req.ResponseFormat = format
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			c.log.Warn("retrying model call: caller=%s attempt=%d delay=%s", caller, attempt, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.client.CreateChatCompletion(callCtx, req)
		cancel()
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", nil
			}
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err
		if !isRetryableModelError(err) {
			break
		}
	}
	return "", apperr.ExternalUnavailable("llm", lastErr).WithDetail("caller", caller)
}

// retryDelay doubles a 500ms base per attempt with +/-20% jitter.
func retryDelay(attempt int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(delay) * jitter)
}

// isRetryableModelError matches 429 and 5xx provider responses.
func isRetryableModelError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Network-level failures are retryable
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
