// Package erpnext is the remote client for the ERP backend. It wraps
// the RPC-style HTTP endpoints the POS core consumes and funnels every
// response through one normalization point, so the rest of the core
// only ever sees canonical shapes.
package erpnext

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ldttech/poscore/internal/errors"
	"github.com/ldttech/poscore/internal/models"
)

// idempotencyHeader carries the client-side token generated per queued
// operation, so a backend that deduplicates can drop double replays.
const idempotencyHeader = "X-Idempotency-Key"

// Client talks to the ERP backend. Credentials live in an explicit
// session updated through Configure; there is no module-level state.
type Client struct {
	mu      sync.RWMutex
	session models.Session
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a Client for the given session. The session may be
// unauthenticated at first; Login plus Configure complete it.
func NewClient(session models.Session, opts ...Option) *Client {
	c := &Client{
		session: session,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure replaces the session (after login, or when the user points
// the terminal at a different backend).
func (c *Client) Configure(session models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// Session returns a copy of the current session.
func (c *Client) Session() models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.BaseURL
}

// request performs an HTTP call and normalizes the response.
// token, when non-empty, is sent as the idempotency key.
func (c *Client) request(ctx context.Context, method, path, contentType string, body []byte, token string) (json.RawMessage, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session.BaseURL == "" {
		return nil, errors.New(errors.ErrInvalid, "remote client has no base URL configured")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(session.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if session.APIKey != "" && session.APISecret != "" {
		req.Header.Set("Authorization", "token "+session.APIKey+":"+session.APISecret)
	}
	if token != "" {
		req.Header.Set(idempotencyHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemoteUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrRemoteUnavailable, "failed to read response", err)
	}

	if err := classifyStatus(resp.StatusCode, data); err != nil {
		return nil, err
	}

	return unwrap(data), nil
}

// classifyStatus maps HTTP status codes onto the core error taxonomy.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.New(errors.ErrAuthFailed, remoteMessage(body, "authentication failed"))
	case status >= 400 && status < 500:
		return errors.New(errors.ErrRemoteRejected,
			fmt.Sprintf("backend rejected request (%d): %s", status, remoteMessage(body, "")))
	default:
		return errors.New(errors.ErrRemoteUnavailable,
			fmt.Sprintf("backend error (%d)", status))
	}
}

// postJSON sends a JSON body and returns the normalized payload.
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, token string) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to encode request", err)
	}
	return c.request(ctx, http.MethodPost, path, "application/json", data, token)
}

// postForm sends a urlencoded form and returns the normalized payload.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, path, "application/x-www-form-urlencoded",
		[]byte(form.Encode()), "")
}

// get performs a GET with query parameters.
func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return c.request(ctx, http.MethodGet, path, "", nil, "")
}
