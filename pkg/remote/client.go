package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TokenSource yields the current session's bearer token, or "" when signed out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Request describes one call against the API.
type Request struct {
	Method string
	URL    string
	// Body is JSON-encoded when non-nil.
	Body any
	// Auth attaches the session's bearer token when one exists and URL is
	// owned by the client.
	Auth bool
}

// Blob is a binary response such as an image or audio file.
type Blob struct {
	ContentType string
	Data        []byte
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// Client performs requests against the remote API
type Client struct {
	config *Config
	base   *url.URL
	http   *http.Client
	tokens TokenSource
	log    logrus.FieldLogger
}

// NewClient creates a new API client. tokens may be nil for anonymous use.
func NewClient(cfg *Config, tokens TokenSource, log logrus.FieldLogger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}

	c := &Client{
		config: cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		log:    log.WithField("component", "remote"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// URL resolves an API path (with optional query) against the base URL. The
// result is the conventional cache key for a GET of that path.
func (c *Client) URL(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")

	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	return u.String()
}

// Endpoint joins path onto the base URL without escaping, so the result can
// carry {placeholders} for mutation URL templates.
func (c *Client) Endpoint(path string) string {
	return strings.TrimRight(c.base.String(), "/") + "/" + strings.TrimLeft(path, "/")
}

// Owns reports whether rawURL addresses this client's API: the base URL's
// scheme and host, no user info, and a path at or below the base path.
func (c *Client) Owns(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.User != nil || u.Opaque != "" {
		return false
	}

	if !strings.EqualFold(u.Scheme, c.base.Scheme) || !strings.EqualFold(u.Host, c.base.Host) {
		return false
	}

	prefix := strings.TrimRight(c.base.Path, "/")
	if prefix == "" {
		return true
	}

	clean := path.Clean("/" + u.Path)

	return clean == prefix || strings.HasPrefix(clean, prefix+"/")
}

// Fetch is the default query fetcher: an optionally authenticated GET of key.
func (c *Client) Fetch(ctx context.Context, key string) (any, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: key, Auth: true})
}

// Do executes req and returns the response body after the envelope rule has
// been applied.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	status, body, _, err := c.roundTrip(ctx, req, "application/json")
	if err != nil {
		return nil, err
	}

	return Normalize(status, body)
}

// GetBlob downloads a binary resource. Non-2xx responses fail with the body
// text as the message.
func (c *Client) GetBlob(ctx context.Context, rawURL string, auth bool) (*Blob, error) {
	status, body, contentType, err := c.roundTrip(ctx, Request{Method: http.MethodGet, URL: rawURL, Auth: auth}, "*/*")
	if err != nil {
		return nil, err
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &Error{
			Kind:       KindProtocol,
			StatusCode: status,
			Message:    protocolText(strings.TrimSpace(string(body)), status),
			Body:       body,
		}
	}

	return &Blob{ContentType: contentType, Data: body}, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request, accept string) (int, []byte, string, error) {
	var payload io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}

		payload = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, payload)
	if err != nil {
		return 0, nil, "", &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}

	requestID := uuid.NewString()

	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("X-Request-ID", requestID)

	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if req.Auth {
		if c.Owns(req.URL) {
			c.authorize(ctx, httpReq)
		} else {
			c.log.WithField("url", req.URL).Warn("Not sending session token to a URL outside the API")
		}
	}

	log := c.log.WithFields(logrus.Fields{
		"method":     req.Method,
		"url":        req.URL,
		"request_id": requestID,
	})

	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.WithError(err).Debug("Request failed")
		return 0, nil, "", &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, "", &Error{
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Message:    err.Error(),
			Err:        err,
		}
	}

	log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("Request completed")

	return resp.StatusCode, body, resp.Header.Get("Content-Type"), nil
}

// authorize attaches the bearer token when a session exists. A token lookup
// failure is treated as signed out.
func (c *Client) authorize(ctx context.Context, req *http.Request) {
	if c.tokens == nil {
		return
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Failed to get session token, continuing unauthenticated")
		return
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
