package config

import (
	"fmt"
	"sort"

	devsly "github.com/devsly/devsly-go"
)

// ClientOptions converts the connection settings into SDK client options.
func ClientOptions(cfg *Config) []devsly.Option {
	opts := []devsly.Option{
		devsly.WithBaseURL(cfg.BaseURL),
		devsly.WithRequestTimeout(cfg.RequestTimeout.Duration()),
		devsly.WithPollInterval(cfg.PollInterval.Duration()),
		devsly.WithWaitTimeout(cfg.WaitTimeout.Duration()),
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, devsly.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	return opts
}

// BuildTests converts parsed configuration into SDK test configurations.
//
// Direct tests come first, in file order, followed by the expansion of each
// matrix.
func BuildTests(cfg *Config) ([]devsly.TestConfig, error) {
	var tests []devsly.TestConfig

	for _, tc := range cfg.Tests {
		opts := append([]devsly.TestOption{devsly.WithName(tc.Name)}, testOptions(tc.TestSettings)...)
		t, err := devsly.NewTestConfig(tc.TargetURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("test (%s): %w", tc.Name, err)
		}
		tests = append(tests, t)
	}

	for _, mc := range cfg.Matrices {
		expanded, err := devsly.NewTestMatrix(mc.Name,
			devsly.WithURLTemplate(mc.URLTemplate),
			devsly.WithDimensions(mc.Dimensions),
			devsly.WithTestOptions(testOptions(mc.TestSettings)...),
		)
		if err != nil {
			return nil, fmt.Errorf("matrix (%s): %w", mc.Name, err)
		}
		tests = append(tests, expanded...)
	}

	return tests, nil
}

// testOptions maps set fields to SDK options; unset fields keep SDK defaults.
func testOptions(s TestSettings) []devsly.TestOption {
	var opts []devsly.TestOption

	if s.Method != "" {
		opts = append(opts, devsly.WithMethod(s.Method))
	}
	if s.Duration != 0 {
		opts = append(opts, devsly.WithDuration(s.Duration.Duration()))
	}
	if s.ConcurrentUsers > 0 {
		opts = append(opts, devsly.WithConcurrentUsers(s.ConcurrentUsers))
	}
	if s.RampUpTime != 0 {
		opts = append(opts, devsly.WithRampUp(s.RampUpTime.Duration()))
	}
	if len(s.Headers) > 0 {
		opts = append(opts, devsly.WithHeaders(mapToKeyValuePairs(s.Headers)...))
	}
	if s.Body != "" {
		opts = append(opts, devsly.WithBody(s.Body))
	}
	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
