// Package transport is the pooled HTTP client underneath the devsly SDK.
//
// It knows nothing about the Devsly API itself: it sends a [Request] and
// captures everything about the exchange in a [Response], including any
// error, so callers can decide how to classify failures.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; a single client talks to one API host
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Request describes a single HTTP exchange.
type Request struct {
	// Method is the HTTP method. Empty defaults to GET.
	Method string

	// URL is the fully-qualified request URL, including any query string.
	URL string

	// Headers are set on the request, replacing any existing value.
	Headers map[string]string

	// Body is sent as the request body when non-nil.
	Body []byte

	// Timeout bounds the whole exchange. Zero means no per-request timeout
	// beyond the caller's context.
	Timeout time.Duration
}

// Response holds the result of an HTTP request made by [Client].
//
// Response captures all relevant information from an HTTP request including
// the body (limited to 1MB), status code, latency, and any error that occurred.
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Header holds the response headers. Nil if no response was received.
	Header http.Header

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// Client is an HTTP client wrapper with connection pooling and a response
// size limit.
//
// Client uses per-request timeouts via context rather than a global timeout.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new [Client] with its own pooled transport.
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// NewClientWith wraps an existing [http.Client], for callers that need their
// own transport (proxies, TLS settings, test servers).
func NewClientWith(hc *http.Client) *Client {
	if hc == nil {
		return NewClient()
	}
	return &Client{httpClient: hc}
}

// Do performs the request and returns a structured [Response].
//
// Do always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Do(ctx context.Context, r Request) Response {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// read body with size limit
	limitedReader := io.LimitReader(resp.Body, maxResponseBodySize)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       data,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
