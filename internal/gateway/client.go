// Package gateway is the HTTP client for the remote business API.
//
// The engine replays queued actions through Transport directly; only the
// dispatcher layers offline queueing on top of it.
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
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	// DefaultCallTimeout bounds a single call, connection to last byte.
	DefaultCallTimeout = 15 * time.Second

	// DefaultAuthPath is the login endpoint; its 401s are bad credentials,
	// not an expired session.
	DefaultAuthPath = "/auth/login"

	maxResponseBytes = 8 << 20
	maxMessageBytes  = 200
)

// Transport performs one raw API call. Implemented by *Client.
type Transport interface {
	Call(ctx context.Context, path, method string, body json.RawMessage) (json.RawMessage, error)
}

// Client calls the remote API over HTTP with bearer authentication.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	session  *Session
	timeout  time.Duration
	authPath string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithSession shares a session with the caller.
func WithSession(s *Session) Option {
	return func(c *Client) {
		c.session = s
	}
}

// WithCallTimeout overrides DefaultCallTimeout. Non-positive values are ignored.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAuthPath overrides DefaultAuthPath.
func WithAuthPath(path string) Option {
	return func(c *Client) {
		c.authPath = path
	}
}

// New creates a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:  u,
		http:     &http.Client{},
		session:  NewSession(""),
		timeout:  DefaultCallTimeout,
		authPath: DefaultAuthPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session whose token the client attaches.
func (c *Client) Session() *Session {
	return c.session
}

// Call sends body (may be nil) to path with method and returns the
// response body. An empty 2xx body is returned as JSON null.
//
// Errors are *APIError for non-2xx responses and *NetworkError when no
// response arrived, including when the call timeout elapses.
func (c *Client) Call(ctx context.Context, path, method string, body json.RawMessage) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	method = strings.ToUpper(method)
	req, err := c.newRequest(ctx, path, method, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: fmt.Errorf("read response: %w", err)}
	}

	slog.Debug("api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized && !c.isAuthPath(path) {
			slog.Warn("session rejected, signing out", "path", path)
			c.session.Clear()
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s %s: response is not valid JSON", method, path)
	}
	return json.RawMessage(data), nil
}

func (c *Client) newRequest(ctx context.Context, path, method string, body json.RawMessage) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path %q must start with /", path)
	}
	target := c.baseURL.String() + path

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req, nil
}

func (c *Client) isAuthPath(path string) bool {
	path, _, _ = strings.Cut(path, "?")
	return path == c.authPath
}

// errorMessage extracts a human message from an error body, preferring
// the JSON fields APIs commonly use.
func errorMessage(status int, body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, k := range []string{"detail", "message", "error"} {
			if s, ok := fields[k].(string); ok && s != "" {
				return s
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text != "" && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		if len(text) > maxMessageBytes {
			text = text[:maxMessageBytes]
		}
		return text
	}
	if msg := http.StatusText(status); msg != "" {
		return msg
	}
	return "unexpected status"
}

// IsCanceled reports whether err stems from the caller giving up rather
// than from the network.
func IsCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
