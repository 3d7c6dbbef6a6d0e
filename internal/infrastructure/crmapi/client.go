package crmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/crmdash/backend/internal/domain/crm"
)

// maxResponseSize is the maximum allowed response size from the CRM API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// APIError is a non-2xx response from the CRM.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crm API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether the failed request is worth repeating. Only
// rate limits are: server errors and transport failures surface on the
// first attempt so the result cache can fall back to a stale entry
// instead of stacking retry delays on top of the request timeout.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the CRM REST API with bearer authentication and
// bounded retries.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*Client)

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the underlying HTTP client. Useful for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a CRM client with the given configuration.
func NewClient(config Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// doRequest performs one API call with retries. Rate-limited responses
// are retried up to MaxAttempts with exponential backoff; a Retry-After
// header, when present, overrides the computed delay. Anything else,
// including 5xx responses and transport errors, propagates immediately.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("crmapi: failed to encode request body: %w", err)
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialBackoff
	bo.Multiplier = 2
	bo.MaxInterval = time.Minute
	bo.Reset()

	var lastErr error
	var retryAfter time.Duration

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := bo.NextBackOff()
			if retryAfter > 0 {
				delay = retryAfter
			}
			c.logger.Warn("retrying CRM request",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		respBody, ra, err := c.send(ctx, method, path, payload)
		if err == nil {
			return respBody, nil
		}

		lastErr = err
		retryAfter = ra

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("crmapi: request failed after %d attempts: %w", c.config.MaxAttempts, lastErr)
}

// send performs a single HTTP exchange. The returned duration is the
// Retry-After hint from a 429 response, zero otherwise.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, time.Duration, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("crmapi: failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("crmapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, fmt.Errorf("crmapi: failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, 0, nil
	}

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return nil, retryAfter, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
}

// AssocBatchSize returns the configured association lookup concurrency.
func (c *Client) AssocBatchSize() int { return c.config.AssocBatchSize }

// AssocDelay returns the configured pause between association batches.
func (c *Client) AssocDelay() time.Duration { return c.config.AssocDelay }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// toRecords converts wire payloads to domain records, dropping null
// property values.
func toRecords(payloads []recordPayload) []crm.Record {
	records := make([]crm.Record, 0, len(payloads))
	for _, p := range payloads {
		props := make(map[string]string, len(p.Properties))
		for name, value := range p.Properties {
			if value != nil {
				props[name] = *value
			}
		}
		records = append(records, crm.Record{ID: p.ID, Properties: props})
	}
	return records
}
