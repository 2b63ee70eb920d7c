package devsly

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// clientConfig holds mutable state during Client construction.
type clientConfig struct {
	baseURL           string
	httpClient        *http.Client
	requestTimeout    time.Duration
	logger            *slog.Logger
	headers           map[string]string
	userAgent         string
	pollInterval      time.Duration
	waitTimeout       time.Duration
	maxConcurrency    int
	progressCallbacks []func(Progress)
}

// Option is a function that configures a [Client] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*clientConfig) error

// WithBaseURL sets the API root, including the version path.
//
// Defaults to [DefaultBaseURL]. A trailing slash is removed.
//
// Example:
//
//	client, err := devsly.New(key, devsly.WithBaseURL("http://localhost:8089/api/v1"))
//
// Returns an error if the URL is not absolute http or https.
func WithBaseURL(rawURL string) Option {
	return func(cfg *clientConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("base URL must include a host")
		}
		cfg.baseURL = strings.TrimRight(rawURL, "/")
		return nil
	}
}

// WithHTTPClient replaces the pooled HTTP client the SDK creates by default.
//
// Returns an error if hc is nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *clientConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithRequestTimeout bounds every individual API request.
//
// Defaults to 30 seconds. This is separate from [WithWaitTimeout], which
// bounds a whole wait for completion.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the client.
//
// Requests are logged at Debug level. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHeader adds a header sent with every request.
//
// The API key, content type and request ID headers always take precedence.
//
// Returns an error if the key is empty.
func WithHeader(key, value string) Option {
	return func(cfg *clientConfig) error {
		if strings.TrimSpace(key) == "" {
			return errors.New("header key cannot be empty")
		}
		cfg.headers[key] = value
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cfg *clientConfig) error {
		if strings.TrimSpace(ua) == "" {
			return errors.New("user agent cannot be empty")
		}
		cfg.userAgent = ua
		return nil
	}
}

// WithPollInterval sets the default delay between status checks used by
// [Client.WaitForCompletion] and [Client.WaitAll].
//
// Defaults to 5 seconds. Individual waits can override it with
// [WaitPollInterval].
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithWaitTimeout sets the default bound on a whole wait for completion.
//
// Defaults to 300 seconds. Individual waits can override it with
// [WaitTimeout].
//
// Returns an error if the duration is zero or negative.
func WithWaitTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		if d <= 0 {
			return errors.New("wait timeout must be positive")
		}
		cfg.waitTimeout = d
		return nil
	}
}

// WithMaxConcurrency limits how many tests [Client.WaitAll] polls at once.
// Defaults to 4.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *clientConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithProgressCallback registers a function called for every non-terminal
// status observed by any wait on this client.
//
// Callbacks run synchronously inside the polling loop and must not block.
// Panics are recovered and logged. Multiple callbacks run in registration
// order, before any per-wait [WaitObserver].
//
// Nil callbacks are silently ignored.
func WithProgressCallback(cb func(Progress)) Option {
	return func(cfg *clientConfig) error {
		if cb == nil {
			return nil
		}
		cfg.progressCallbacks = append(cfg.progressCallbacks, cb)
		return nil
	}
}
