package main

import (
	"fmt"

	"github.com/devsly/devsly-go/config"
	"github.com/spf13/cobra"
)

// validateCmd validates a suite file without starting any tests.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a suite file",
	Long: `Validate a devsly suite file without starting any tests.

This command parses the YAML, expands environment variables, validates
all fields and expands every matrix. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  devsly validate -c suite.yaml
  devsly validate --config ./loadtests/nightly.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// building catches template errors that only show up on expansion
	tests, err := config.BuildTests(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Tests)
	fromMatrices := len(tests) - direct

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Base URL:      %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Wait timeout:  %s\n", cfg.WaitTimeout.Duration())
	fmt.Fprintf(out, "  Tests:         %d direct + %d from matrices = %d total\n",
		direct, fromMatrices, len(tests))

	return nil
}
