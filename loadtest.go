package devsly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Load test defaults applied by [NewTestConfig].
const (
	DefaultTestMethod      = http.MethodGet
	DefaultTestDuration    = 60 * time.Second
	DefaultConcurrentUsers = 10
	DefaultRampUp          = 10 * time.Second
)

// TestConfig describes a load test to start.
//
// TestConfig is immutable after creation via [NewTestConfig]. Getters return
// copies of mutable data. It marshals to the JSON body the start endpoint
// expects; the name is kept client-side.
type TestConfig struct {
	name            string
	targetURL       string
	method          string
	duration        time.Duration
	concurrentUsers int
	rampUp          time.Duration
	headers         map[string]string
	body            string
}

// NewTestConfig creates a [TestConfig] for targetURL with the given options.
//
// Defaults: method GET, duration 60s, 10 concurrent users, 10s ramp-up. When
// no name is set the target URL is used.
//
// Returns an error if the URL is not absolute http or https, or an option
// is invalid.
//
// Example:
//
//	cfg, err := devsly.NewTestConfig("https://api.example.com/users",
//	    devsly.WithMethod("POST"),
//	    devsly.WithConcurrentUsers(50),
//	    devsly.WithDuration(2*time.Minute),
//	)
func NewTestConfig(targetURL string, opts ...TestOption) (TestConfig, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return TestConfig{}, fmt.Errorf("invalid target URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return TestConfig{}, errors.New("target URL must have a scheme (http:// or https://)")
	}
	if parsed.Host == "" {
		return TestConfig{}, errors.New("target URL must include a host")
	}

	cfg := &testConfigBuilder{
		method:          DefaultTestMethod,
		duration:        DefaultTestDuration,
		concurrentUsers: DefaultConcurrentUsers,
		rampUp:          DefaultRampUp,
		headers:         make(map[string]string),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return TestConfig{}, err
		}
	}

	if cfg.rampUp > cfg.duration {
		if cfg.rampUpSet {
			return TestConfig{}, fmt.Errorf("ramp-up time %s exceeds duration %s", cfg.rampUp, cfg.duration)
		}
		cfg.rampUp = cfg.duration
	}

	name := cfg.name
	if name == "" {
		name = targetURL
	}

	return TestConfig{
		name:            name,
		targetURL:       targetURL,
		method:          cfg.method,
		duration:        cfg.duration,
		concurrentUsers: cfg.concurrentUsers,
		rampUp:          cfg.rampUp,
		headers:         cfg.headers,
		body:            cfg.body,
	}, nil
}

// Name returns the display name used in logs and the CLI.
func (t TestConfig) Name() string {
	return t.name
}

// TargetURL returns the URL under test.
func (t TestConfig) TargetURL() string {
	return t.targetURL
}

// Method returns the HTTP method sent to the target.
func (t TestConfig) Method() string {
	return t.method
}

// Duration returns how long the test runs.
func (t TestConfig) Duration() time.Duration {
	return t.duration
}

// ConcurrentUsers returns the number of simulated users.
func (t TestConfig) ConcurrentUsers() int {
	return t.concurrentUsers
}

// RampUp returns the time taken to reach full concurrency.
func (t TestConfig) RampUp() time.Duration {
	return t.rampUp
}

// Headers returns a copy of the headers sent to the target.
// Returns nil if none are set.
func (t TestConfig) Headers() map[string]string {
	return copyMap(t.headers)
}

// Body returns the request body sent to the target.
func (t TestConfig) Body() string {
	return t.body
}

// testConfigWire is the start endpoint's request body.
type testConfigWire struct {
	TargetURL       string            `json:"target_url"`
	Method          string            `json:"method"`
	Duration        int               `json:"duration"`
	ConcurrentUsers int               `json:"concurrent_users"`
	RampUpTime      int               `json:"ramp_up_time"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
}

// MarshalJSON encodes the configuration in the API's wire format, with
// durations in whole seconds.
func (t TestConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(testConfigWire{
		TargetURL:       t.targetURL,
		Method:          t.method,
		Duration:        int(t.duration / time.Second),
		ConcurrentUsers: t.concurrentUsers,
		RampUpTime:      int(t.rampUp / time.Second),
		Headers:         t.headers,
		Body:            t.body,
	})
}

// TestHandle is returned when a test is accepted.
type TestHandle struct {
	TestID  string `json:"test_id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// TestStatus is a point-in-time snapshot of a running or finished test.
type TestStatus struct {
	TestID string
	State  State
	// RawState is the state string exactly as the API sent it.
	RawState string
	// Progress is advisory, 0 to 100.
	Progress float64
	Message  string
}

// UnmarshalJSON accepts the state under either "status" or "state".
func (s *TestStatus) UnmarshalJSON(data []byte) error {
	var wire struct {
		TestID   string   `json:"test_id"`
		Status   string   `json:"status"`
		State    string   `json:"state"`
		Progress *float64 `json:"progress"`
		Message  string   `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	raw := wire.Status
	if raw == "" {
		raw = wire.State
	}

	*s = TestStatus{
		TestID:   wire.TestID,
		State:    ParseState(raw),
		RawState: raw,
		Message:  wire.Message,
	}
	if wire.Progress != nil {
		s.Progress = *wire.Progress
	}
	return nil
}

// MarshalJSON writes the status in the API's field names.
func (s TestStatus) MarshalJSON() ([]byte, error) {
	raw := s.RawState
	if raw == "" {
		raw = s.State.String()
	}
	return json.Marshal(struct {
		TestID   string  `json:"test_id,omitempty"`
		Status   string  `json:"status"`
		Progress float64 `json:"progress"`
		Message  string  `json:"message,omitempty"`
	}{s.TestID, raw, s.Progress, s.Message})
}

// Percentiles holds response time percentiles in milliseconds.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// TestResult is the final report of a finished test.
//
// Fields the API omits are nil. Tests that ended in failure may return a
// partial or empty report, so callers should check fields before use. Raw
// holds the complete payload for fields not modelled here.
type TestResult struct {
	TestID             string          `json:"test_id,omitempty"`
	State              *string         `json:"status,omitempty"`
	TotalRequests      *int64          `json:"total_requests,omitempty"`
	SuccessfulRequests *int64          `json:"successful_requests,omitempty"`
	FailedRequests     *int64          `json:"failed_requests,omitempty"`
	AvgResponseTime    *float64        `json:"avg_response_time,omitempty"`
	RequestsPerSecond  *float64        `json:"requests_per_second,omitempty"`
	Percentiles        *Percentiles    `json:"percentiles,omitempty"`
	Error              string          `json:"error,omitempty"`
	Raw                json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the modelled fields and keeps the raw payload.
func (r *TestResult) UnmarshalJSON(data []byte) error {
	type plain TestResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = TestResult(p)
	if r.State == nil {
		var alt struct {
			State *string `json:"state"`
		}
		if err := json.Unmarshal(data, &alt); err == nil {
			r.State = alt.State
		}
	}
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// SuccessRate returns successful requests as a fraction of the total, and
// false when either count is missing or the total is zero.
func (r *TestResult) SuccessRate() (float64, bool) {
	if r == nil || r.TotalRequests == nil || r.SuccessfulRequests == nil || *r.TotalRequests == 0 {
		return 0, false
	}
	return float64(*r.SuccessfulRequests) / float64(*r.TotalRequests), true
}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StartTest submits a load test and returns its handle.
func (c *Client) StartTest(ctx context.Context, cfg TestConfig) (*TestHandle, error) {
	if cfg.targetURL == "" {
		return nil, fmt.Errorf("%w: test config has no target URL", ErrInvalidArgument)
	}

	var handle TestHandle
	if err := c.post(ctx, "/load-testing/start", cfg, &handle); err != nil {
		return nil, fmt.Errorf("starting test %q: %w", cfg.name, err)
	}
	if handle.TestID == "" {
		return nil, fmt.Errorf("%w: start response has no test_id", ErrDecode)
	}
	return &handle, nil
}

// TestStatus fetches the current status of a test.
func (c *Client) TestStatus(ctx context.Context, testID string) (*TestStatus, error) {
	if err := requireID(testID); err != nil {
		return nil, err
	}

	var status TestStatus
	if err := c.get(ctx, "/load-testing/status/"+url.PathEscape(testID), nil, &status); err != nil {
		return nil, err
	}
	if status.TestID == "" {
		status.TestID = testID
	}
	return &status, nil
}

// StopTest asks the API to stop a running test.
func (c *Client) StopTest(ctx context.Context, testID string) (*StopResponse, error) {
	if err := requireID(testID); err != nil {
		return nil, err
	}

	var resp StopResponse
	if err := c.post(ctx, "/load-testing/stop/"+url.PathEscape(testID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestResults fetches the final report of a test.
//
// The API only returns a complete report once the test is terminal; use
// [Client.WaitForCompletion] to wait for that.
func (c *Client) TestResults(ctx context.Context, testID string) (*TestResult, error) {
	if err := requireID(testID); err != nil {
		return nil, err
	}

	var result TestResult
	if err := c.get(ctx, "/load-testing/results/"+url.PathEscape(testID), nil, &result); err != nil {
		return nil, err
	}
	if result.TestID == "" {
		result.TestID = testID
	}
	return &result, nil
}

func requireID(testID string) error {
	if strings.TrimSpace(testID) == "" {
		return fmt.Errorf("%w: test id is required", ErrInvalidArgument)
	}
	return nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
