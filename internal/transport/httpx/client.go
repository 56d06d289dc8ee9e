// Package httpx is a JSON-over-HTTP client whose calls run behind the
// circuit breaker, keyed by host.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/faultline/internal/breaker"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// StatusError is returned for non-2xx responses. The normalizer reads the
// status through HTTPStatus.
type StatusError struct {
	Status     int
	Body       string
	RetryAfter string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Status }

// Client calls one base URL.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	breaker    *breaker.Breaker
	opts       breaker.Options
	header     http.Header

	retryUnsafe bool
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// WithRetryUnsafe marks POST and PATCH calls on this client as safe to
// repeat. Without it they are attempted once.
func WithRetryUnsafe() Option {
	return func(c *Client) { c.retryUnsafe = true }
}

// WithKey overrides the circuit key.
func WithKey(key string) Option {
	return func(c *Client) { c.key = key }
}

// NewClient creates a client for baseURL. Calls are guarded by the circuit
// "http:<host>" unless WithKey says otherwise.
func NewClient(baseURL string, timeout time.Duration, b *breaker.Breaker, opts breaker.Options, options ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: missing host", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		key:     "http:" + u.Host,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: b,
		opts:    opts,
		header:  make(http.Header),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Key returns the circuit key.
func (c *Client) Key() string { return c.key }

// GetJSON decodes the response of GET path into out. out may be nil.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends in as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Do performs one logical call. Each attempt rebuilds the request, so
// retries resend the full body.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	opts := c.opts
	if !idempotent(method) && !c.retryUnsafe {
		opts.Retry.MaxAttempts = 1
	}

	_, err := breaker.Execute(ctx, c.breaker, c.key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, path, payload, out)
	}, opts)
	return err
}

// idempotent follows RFC 9110 section 9.2.2.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace,
		http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
