package devsly

import (
	"errors"
	"fmt"
)

// matrixConfig holds configuration during test matrix construction.
type matrixConfig struct {
	urlTemplate string
	dimensions  map[string][]string
	testOpts    []TestOption
}

// MatrixOption configures test matrix generation.
// MatrixOption implements the functional options pattern for [NewTestMatrix].
type MatrixOption func(*matrixConfig) error

// WithURLTemplate sets the target URL template for test generation.
// The template uses Go's text/template syntax with dimension keys as variables.
//
// Example:
//
//	WithURLTemplate("https://{{.region}}.example.com/api?tier={{.tier}}")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) MatrixOption {
	return func(cfg *matrixConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
// Each key in the map becomes a template variable, and the cartesian product
// of all values generates the test combinations.
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) MatrixOption {
	return func(cfg *matrixConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithTestOptions applies opts to every generated [TestConfig].
//
// Example:
//
//	WithTestOptions(devsly.WithDuration(30*time.Second), devsly.WithConcurrentUsers(5))
//
// A [WithName] passed here is overridden by the generated name.
func WithTestOptions(opts ...TestOption) MatrixOption {
	return func(cfg *matrixConfig) error {
		for _, opt := range opts {
			if opt == nil {
				return errors.New("test option cannot be nil")
			}
		}
		cfg.testOpts = append(cfg.testOpts, opts...)
		return nil
	}
}
