// Package ucp is a small client for the Universal Commerce Protocol demo
// server used by the shopping assistant.
package ucp

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
	"time"

	"github.com/google/uuid"
)

const maxResponseBytes = 1 << 20

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("ucp %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Interceptor wraps the transport used for every request.
type Interceptor func(next http.RoundTripper) http.RoundTripper

type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	interceptors []Interceptor
	agentProfile string
	getAttempts  int
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithInterceptor adds a transport interceptor. Interceptors run in the order
// they are given.
func WithInterceptor(i Interceptor) Option {
	return func(c *Client) {
		if i != nil {
			c.interceptors = append(c.interceptors, i)
		}
	}
}

// WithAgentProfile sets the profile URL announced in the UCP-Agent header.
func WithAgentProfile(profile string) Option {
	return func(c *Client) {
		c.agentProfile = strings.TrimSpace(profile)
	}
}

// WithRetry sets how many times idempotent GET requests are attempted.
func WithRetry(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.getAttempts = attempts
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if raw == "" {
		return nil, errors.New("ucp: empty server URL")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("ucp: parse server URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("ucp: unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("ucp: server URL %q has no host", baseURL)
	}

	c := &Client{
		baseURL:     parsed,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		getAttempts: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if len(c.interceptors) > 0 {
		wrapped := *c.httpClient
		transport := wrapped.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		for i := len(c.interceptors) - 1; i >= 0; i-- {
			transport = c.interceptors[i](transport)
		}
		wrapped.Transport = transport
		c.httpClient = &wrapped
	}
	return c, nil
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.getAttempts; attempt++ {
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("ucp %s %s: encode request: %w", method, path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("ucp %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Request-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	if c.agentProfile != "" {
		req.Header.Set("UCP-Agent", fmt.Sprintf("profile=%q", c.agentProfile))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ucp %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("ucp %s %s: read response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("ucp %s %s: response is not JSON", method, path)
	}
	return json.RawMessage(data), nil
}
