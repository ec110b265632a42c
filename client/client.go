// Package client implements the outbound HTTP/JSON calls the four services
// make to each other: a thin *http.Client wrapper with a default timeout
// and JSON (un)marshal helpers. Every call is either a synchronous query
// (BB reads) or a fire-and-forget notification, never a stateful session,
// so there is no retry or token machinery.
package client

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

	"github.com/lokivote/cbr-voting/log"
)

// DefaultTimeout is the default outbound HTTP client timeout.
const DefaultTimeout = 10 * time.Second

// Client is a small JSON-over-HTTP client bound to one peer base URL.
type Client struct {
	http    *http.Client
	baseURL string
}

// New returns a Client bound to baseURL with the default timeout.
func New(baseURL string) *Client {
	return &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Get performs a GET request and decodes the JSON response body into out
// (if out is non-nil).
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// Post performs a POST request with a JSON-encoded body and decodes the
// JSON response into out (if out is non-nil).
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: request to %s failed: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: failed to read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("client: %s %s returned status %d: %s", req.Method, req.URL.String(), resp.StatusCode, string(data))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: failed to decode response from %s: %w", req.URL.String(), err)
	}
	return nil
}

// ErrNotFound is returned when a peer answers with HTTP 404 (e.g. a tally
// requested before it exists).
var ErrNotFound = fmt.Errorf("client: resource not found")

// Notify fires a fire-and-forget GET/POST in its own goroutine, logging
// and swallowing any error: notifications are non-critical and recipients
// are idempotent. fn is expected to close over a context with its own
// short-lived timeout.
func Notify(label string, fn func() error) {
	go func() {
		if err := fn(); err != nil {
			log.Warnw("notification failed", "target", label, "error", err.Error())
		}
	}()
}
