// Package main is the entry point for the devsly CLI.
//
// The CLI wraps the devsly SDK for use from a shell or CI pipeline. Single
// commands talk to the API directly; run drives a whole YAML suite of load
// tests and can expose live progress over HTTP.
//
// Usage:
//
//	devsly run -c suite.yaml              # Start every test and wait for results
//	devsly start https://example.com      # Start one test
//	devsly wait <test-id>                 # Wait for a started test
//	devsly dns example.com --type MX      # Network tools
//	devsly validate -c suite.yaml         # Validate configuration
//	devsly version                        # Show version info
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	devsly "github.com/devsly/devsly-go"
	"github.com/devsly/devsly-go/config"
	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// envAPIKey is consulted when neither --api-key nor the config sets a key.
const envAPIKey = "DEVSLY_API_KEY"

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "devsly",
	Short: "Run Devsly load tests and network lookups",
	Long: `devsly is a command line client for the Devsly API.

It starts load tests, polls them until they finish and prints their
reports. A YAML suite can describe many tests at once, including
matrices generated from a URL template.

Quick start:
  1. export DEVSLY_API_KEY=...
  2. devsly start https://example.com --users 20 --duration 1m --wait
  3. or describe a suite and run: devsly run -c suite.yaml

Example suite:
  poll_interval: 5s
  wait_timeout: 10m
  tests:
    - name: Homepage
      target_url: https://example.com
      concurrent_users: 20
      duration: 1m`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this devsly binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "devsly %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("api-key", "", "Devsly API key (default $"+envAPIKey+")")
	pf.String("base-url", "", "API base URL (default "+devsly.DefaultBaseURL+")")
	pf.BoolP("verbose", "v", false, "log every API request")
}

// newLogger creates a JSON logger on the command's error stream.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}

// newClient builds an SDK client from global flags, cfg (may be nil) and the
// environment. Flags take precedence over the config file, which takes
// precedence over the environment.
func newClient(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*devsly.Client, error) {
	apiKey, _ := cmd.Flags().GetString("api-key")

	var opts []devsly.Option
	if cfg != nil {
		if apiKey == "" {
			apiKey = cfg.APIKey
		}
		opts = append(opts, config.ClientOptions(cfg)...)
	}
	if apiKey == "" {
		apiKey = os.Getenv(envAPIKey)
	}
	if apiKey == "" {
		return nil, errors.New("no API key: use --api-key, set api_key in the config or export " + envAPIKey)
	}

	if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
		opts = append(opts, devsly.WithBaseURL(baseURL))
	}
	opts = append(opts,
		devsly.WithLogger(logger),
		devsly.WithUserAgent("devsly-cli/"+version),
	)

	client, err := devsly.New(apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}
