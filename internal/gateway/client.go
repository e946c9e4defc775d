// Package gateway is the single chokepoint for calls to the dashboard
// backend. It attaches the bearer credential, applies the fixed request
// timeout, and classifies every failure once into a closed error type.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// TokenFunc returns the current bearer credential, or "" when anonymous.
// The stored value may or may not already carry the "Bearer " scheme.
type TokenFunc func() string

// Client issues HTTP requests against the dashboard backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokenFn    TokenFunc
}

// New returns a Client for the given base URL. timeout <= 0 falls back to 10s.
// tokenFn may be nil for an always-anonymous client.
func New(baseURL string, timeout time.Duration, tokenFn TokenFunc) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokenFn:    tokenFn,
	}
}

// authHeader normalizes a stored token into an Authorization header value,
// avoiding a double "Bearer Bearer" when the stored token already carries
// the scheme. Returns "" for an empty token.
func authHeader(token string) string {
	if token == "" {
		return ""
	}
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

// do sends one request and decodes a JSON response into out (when non-nil).
// Non-2xx responses and transport failures are returned as *Error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return transientErr(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.tokenFn != nil {
		if h := authHeader(c.tokenFn()); h != "" {
			req.Header.Set("Authorization", h)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transientErr(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transientErr(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return transientErr(err)
		}
	}
	return nil
}

// getJSON issues a GET and decodes the response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, "", out)
}

// postJSON issues a POST with a JSON body and decodes the response into out (when non-nil).
func (c *Client) postJSON(ctx context.Context, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return transientErr(err)
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, http.MethodPost, path, query, body, "application/json", out)
}

// postForm issues a POST with a form-encoded body (the OAuth2 login shape).
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", out)
}

// patchJSON issues a PATCH with a JSON body.
func (c *Client) patchJSON(ctx context.Context, path string, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return transientErr(err)
	}
	return c.do(ctx, http.MethodPatch, path, nil, bytes.NewReader(raw), "application/json", nil)
}

// delete issues a bodyless DELETE.
func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, "", nil)
}

// put issues a bodyless PUT (the distinct activate/deactivate transitions).
func (c *Client) put(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPut, path, nil, nil, "", nil)
}
