package devsly

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// testConfigBuilder holds mutable state during test configuration construction.
type testConfigBuilder struct {
	name            string
	method          string
	duration        time.Duration
	concurrentUsers int
	rampUp          time.Duration
	rampUpSet       bool
	headers         map[string]string
	body            string
}

// TestOption is a function that configures a [TestConfig] during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithName], [WithMethod], [WithDuration],
// [WithConcurrentUsers], [WithRampUp], [WithHeaders], [WithBody].
type TestOption func(*testConfigBuilder) error

// WithName sets a display name for the test. The name is never sent to the API.
func WithName(name string) TestOption {
	return func(cfg *testConfigBuilder) error {
		cfg.name = strings.TrimSpace(name)
		return nil
	}
}

// WithMethod sets the HTTP method the load test uses against the target.
//
// Defaults to GET. The method is normalised to upper case.
//
// Returns an error if the method is not a standard HTTP method.
func WithMethod(method string) TestOption {
	return func(cfg *testConfigBuilder) error {
		m, err := normaliseMethod(method)
		if err != nil {
			return err
		}
		cfg.method = m
		return nil
	}
}

// WithDuration sets how long the load test runs.
//
// Defaults to 60 seconds. The API works in whole seconds, so the value must
// be at least one second and is truncated to a whole second.
func WithDuration(d time.Duration) TestOption {
	return func(cfg *testConfigBuilder) error {
		if d < time.Second {
			return errors.New("duration must be at least 1 second")
		}
		cfg.duration = d.Truncate(time.Second)
		return nil
	}
}

// WithConcurrentUsers sets the number of simulated users. Defaults to 10.
func WithConcurrentUsers(n int) TestOption {
	return func(cfg *testConfigBuilder) error {
		if n <= 0 {
			return errors.New("concurrent users must be positive")
		}
		cfg.concurrentUsers = n
		return nil
	}
}

// WithRampUp sets the time taken to reach full concurrency.
//
// Defaults to 10 seconds, or the test duration when that is shorter. Zero
// starts all users at once. The value is truncated to a whole second.
func WithRampUp(d time.Duration) TestOption {
	return func(cfg *testConfigBuilder) error {
		if d < 0 {
			return errors.New("ramp-up time cannot be negative")
		}
		cfg.rampUp = d.Truncate(time.Second)
		cfg.rampUpSet = true
		return nil
	}
}

// WithHeaders adds HTTP headers the load test sends to the target.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	cfg, err := devsly.NewTestConfig("https://api.example.com",
//	    devsly.WithHeaders("Authorization", "Bearer token"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) TestOption {
	return func(cfg *testConfigBuilder) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithBody sets the request body the load test sends to the target.
func WithBody(body string) TestOption {
	return func(cfg *testConfigBuilder) error {
		cfg.body = body
		return nil
	}
}

// normaliseMethod upper-cases method and checks it against the methods the
// load tester accepts. Empty means GET.
func normaliseMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	switch m {
	case "":
		return http.MethodGet, nil
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported method %q", method)
	}
}
