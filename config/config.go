// Package config provides YAML configuration parsing for the devsly CLI.
//
// A configuration file describes the API connection and the load tests a
// `devsly run` should start and wait on, as an alternative to building them
// with the SDK.
//
// Example configuration:
//
//	api_key: ${DEVSLY_API_KEY}
//	poll_interval: 5s
//	wait_timeout: 5m
//
//	tests:
//	  - name: Homepage
//	    target_url: https://example.com
//	    duration: 30s
//	    concurrent_users: 10
//
//	matrices:
//	  - name: Regions
//	    url_template: "https://{{.region}}.example.com/health"
//	    dimensions:
//	      region: [us, eu]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// minPollInterval stops a config from hammering the status endpoint.
const minPollInterval = 1 * time.Second

// Defaults applied by [Parse].
const (
	DefaultBaseURL        = "https://devsly.io/api/v1"
	DefaultRequestTimeout = 30 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultWaitTimeout    = 5 * time.Minute
	DefaultMaxConcurrency = 4
)

var allowedMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {}, "HEAD": {}, "OPTIONS": {},
}

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// APIKey authenticates against the API. Usually "${DEVSLY_API_KEY}".
	// May be left empty when the key is passed on the command line.
	APIKey string `yaml:"api_key"`

	// BaseURL is the API root. Defaults to https://devsly.io/api/v1.
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds each API request. Defaults to 30s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// PollInterval is the delay between status checks. Defaults to 5s.
	PollInterval Duration `yaml:"poll_interval"`

	// WaitTimeout bounds the wait for each test. Defaults to 5m.
	WaitTimeout Duration `yaml:"wait_timeout"`

	// MaxConcurrency limits how many tests are polled at once. Defaults to 4.
	MaxConcurrency int `yaml:"max_concurrency"`

	// History is an optional SQLite file recording every run.
	History string `yaml:"history"`

	// Listen is an optional address for the job status server, e.g. ":8080".
	Listen string `yaml:"listen"`

	// Tests defines individual load tests.
	Tests []TestEntry `yaml:"tests"`

	// Matrices defines test matrices that expand via cartesian product.
	Matrices []MatrixEntry `yaml:"matrices"`
}

// TestSettings are the load parameters shared by tests and matrices.
type TestSettings struct {
	// Method is the HTTP method sent to the target. Defaults to GET.
	Method string `yaml:"method"`

	// Duration is how long the test runs, in whole seconds. Defaults to 60s.
	Duration Duration `yaml:"duration"`

	// ConcurrentUsers is the number of simulated users. Defaults to 10.
	ConcurrentUsers int `yaml:"concurrent_users"`

	// RampUpTime is the time to reach full concurrency. Defaults to 10s, or
	// the duration when that is shorter.
	RampUpTime Duration `yaml:"ramp_up_time"`

	// Headers are sent to the target. Values support environment variable
	// substitution.
	Headers map[string]string `yaml:"headers"`

	// Body is the request body sent to the target.
	Body string `yaml:"body"`
}

// TestEntry defines a single load test.
type TestEntry struct {
	// Name is the display name used in logs and the job server.
	Name string `yaml:"name"`

	// TargetURL is the URL under load.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	TargetURL string `yaml:"target_url"`

	TestSettings `yaml:",inline"`
}

// MatrixEntry defines a set of tests generated from a URL template.
//
// For example, with dimensions {region: [us, eu], tier: [free, pro]},
// the matrix expands to 4 tests.
type MatrixEntry struct {
	// Name is the base name for generated tests.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating target URLs.
	// Dimension keys are available as template variables: {{.region}}
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	TestSettings `yaml:",inline"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in api_key, base_url, target URLs,
// URL templates and header values. Defaults are applied for base_url,
// request_timeout, poll_interval, wait_timeout and max_concurrency.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = Duration(DefaultWaitTimeout)
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error

	if c.APIKey, err = expandEnvVars(c.APIKey); err != nil {
		return fmt.Errorf("api_key: %w", err)
	}

	if c.BaseURL, err = expandEnvVars(c.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if err := validateHTTPURL(c.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}

	if c.RequestTimeout.Duration() <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout.Duration())
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.WaitTimeout.Duration() < c.PollInterval.Duration() {
		return fmt.Errorf("wait_timeout (%s) must not be shorter than poll_interval (%s)",
			c.WaitTimeout.Duration(), c.PollInterval.Duration())
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}

	seen := make(map[string]struct{})

	for i := range c.Tests {
		tc := &c.Tests[i]

		if tc.Name == "" {
			return fmt.Errorf("tests[%d]: name is required", i)
		}
		ctx := fmt.Sprintf("tests[%d] (%s)", i, tc.Name)

		if _, dup := seen[tc.Name]; dup {
			return fmt.Errorf("%s: duplicate test name", ctx)
		}
		seen[tc.Name] = struct{}{}

		if tc.TargetURL == "" {
			return fmt.Errorf("%s: target_url is required", ctx)
		}
		if tc.TargetURL, err = expandEnvVars(tc.TargetURL); err != nil {
			return fmt.Errorf("%s: target_url: %w", ctx, err)
		}
		if err := validateHTTPURL(tc.TargetURL); err != nil {
			return fmt.Errorf("%s: target_url: %w", ctx, err)
		}

		if err := tc.TestSettings.expandAndValidate(ctx); err != nil {
			return err
		}
	}

	for i := range c.Matrices {
		m := &c.Matrices[i]

		if m.Name == "" {
			return fmt.Errorf("matrices[%d]: name is required", i)
		}
		ctx := fmt.Sprintf("matrices[%d] (%s)", i, m.Name)

		if m.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", ctx)
		}
		if m.URLTemplate, err = expandEnvVars(m.URLTemplate); err != nil {
			return fmt.Errorf("%s: url_template: %w", ctx, err)
		}

		// fail fast before the SDK tries to use an invalid template
		if _, err := template.New("").Parse(m.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", ctx, err)
		}

		if len(m.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", ctx)
		}
		for dimName, dimValues := range m.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", ctx, dimName)
			}
			values := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := values[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", ctx, dimName, v)
				}
				values[v] = struct{}{}
			}
		}

		if err := m.TestSettings.expandAndValidate(ctx); err != nil {
			return err
		}
	}

	if len(c.Tests) == 0 && len(c.Matrices) == 0 {
		return errors.New("at least one test or matrix must be defined")
	}

	return nil
}

func (s *TestSettings) expandAndValidate(ctx string) error {
	for k, v := range s.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", ctx, k, err)
		}
		s.Headers[k] = expanded
	}

	if s.Method != "" {
		s.Method = strings.ToUpper(s.Method)
		if _, ok := allowedMethods[s.Method]; !ok {
			return fmt.Errorf("%s: unsupported method %q", ctx, s.Method)
		}
	}

	if s.Duration != 0 && s.Duration.Duration() < time.Second {
		return fmt.Errorf("%s: duration must be at least 1s if specified, got %s", ctx, s.Duration.Duration())
	}
	if s.ConcurrentUsers < 0 {
		return fmt.Errorf("%s: concurrent_users cannot be negative, got %d", ctx, s.ConcurrentUsers)
	}
	if s.RampUpTime.Duration() < 0 {
		return fmt.Errorf("%s: ramp_up_time cannot be negative, got %s", ctx, s.RampUpTime.Duration())
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must include a host")
	}
	return nil
}
