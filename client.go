package devsly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devsly/devsly-go/internal/poller"
	"github.com/devsly/devsly-go/internal/transport"
)

// DefaultBaseURL is the hosted Devsly API root.
const DefaultBaseURL = "https://devsly.io/api/v1"

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxConcurrency = 4
	defaultUserAgent      = "devsly-go"

	headerAPIKey    = "X-API-Key"
	headerRequestID = "X-Request-ID"
)

// Client talks to the Devsly API.
//
// A Client is safe for concurrent use. Create one with [New] and reuse it;
// call [Client.Close] when done to release pooled connections.
type Client struct {
	apiKey            string
	baseURL           string
	headers           map[string]string
	userAgent         string
	requestTimeout    time.Duration
	pollInterval      time.Duration
	waitTimeout       time.Duration
	maxConcurrency    int
	logger            *slog.Logger
	progressCallbacks []func(Progress)
	http              *transport.Client
}

// New creates a [Client] authenticated with apiKey.
//
// Defaults:
//   - Base URL: https://devsly.io/api/v1
//   - Request timeout: 30 seconds
//   - Poll interval: 5 seconds
//   - Wait timeout: 300 seconds
//   - Max concurrency: 4
//
// Returns an error if apiKey is empty or any option is invalid.
//
// Example:
//
//	client, err := devsly.New(os.Getenv("DEVSLY_API_KEY"),
//	    devsly.WithPollInterval(2*time.Second),
//	)
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}

	cfg := &clientConfig{
		baseURL:        DefaultBaseURL,
		requestTimeout: defaultRequestTimeout,
		headers:        make(map[string]string),
		userAgent:      defaultUserAgent,
		pollInterval:   poller.DefaultPollInterval,
		waitTimeout:    poller.DefaultTimeout,
		maxConcurrency: defaultMaxConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := transport.NewClient()
	if cfg.httpClient != nil {
		httpClient = transport.NewClientWith(cfg.httpClient)
	}

	return &Client{
		apiKey:            apiKey,
		baseURL:           cfg.baseURL,
		headers:           cfg.headers,
		userAgent:         cfg.userAgent,
		requestTimeout:    cfg.requestTimeout,
		pollInterval:      cfg.pollInterval,
		waitTimeout:       cfg.waitTimeout,
		maxConcurrency:    cfg.maxConcurrency,
		logger:            logger,
		progressCallbacks: cfg.progressCallbacks,
		http:              httpClient,
	}, nil
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PollInterval returns the default delay between status checks.
func (c *Client) PollInterval() time.Duration {
	return c.pollInterval
}

// WaitTimeout returns the default bound on a wait for completion.
func (c *Client) WaitTimeout() time.Duration {
	return c.waitTimeout
}

// Close releases idle pooled connections. The client remains usable.
func (c *Client) Close() {
	c.http.Close()
}

// do sends one API request and decodes a 2xx JSON response into out.
//
// in, when non-nil, is encoded as the JSON request body. out may be nil to
// discard the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	requestID := uuid.NewString()

	headers := make(map[string]string, len(c.headers)+5)
	for k, v := range c.headers {
		headers[k] = v
	}
	headers["User-Agent"] = c.userAgent
	headers["Accept"] = "application/json"
	headers["Content-Type"] = "application/json"
	headers[headerAPIKey] = c.apiKey
	headers[headerRequestID] = requestID

	resp := c.http.Do(ctx, transport.Request{
		Method:  method,
		URL:     u,
		Headers: headers,
		Body:    body,
		Timeout: c.requestTimeout,
	})

	logAttrs := []any{
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", resp.Latency.Milliseconds(),
		"request_id", requestID,
	}
	if resp.Error != nil {
		c.logger.Debug("devsly request failed", append(logAttrs, "error", resp.Error.Error())...)
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, resp.Error)
	}
	c.logger.Debug("devsly request", logAttrs...)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, resp.Body, requestID)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrDecode, method, path, err)
	}
	return nil
}

// get is do for GET requests without a body.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// post is do for POST requests.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}
