package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	devsly "github.com/devsly/devsly-go"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <target-url>",
	Short: "Start a load test",
	Long: `Start a load test against target-url and print its test ID.

With --wait the command polls until the test finishes and prints the
report, exactly like "devsly wait".

Example:
  devsly start https://example.com --users 50 --duration 2m
  devsly start https://api.example.com/orders -X POST \
      -H "Content-Type: application/json" --body '{"sku":"A1"}' --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status <test-id>",
	Short: "Show the current status of a load test",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var stopCmd = &cobra.Command{
	Use:   "stop <test-id>",
	Short: "Stop a running load test",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

var resultsCmd = &cobra.Command{
	Use:   "results <test-id>",
	Short: "Fetch the report of a load test",
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

var waitCmd = &cobra.Command{
	Use:   "wait <test-id>...",
	Short: "Wait for load tests to finish and print their reports",
	Long: `Poll one or more load tests until each reaches completed, stopped or
failed, then print every report.

The command exits non-zero if any wait fails or times out.

Example:
  devsly wait 5f0c... --interval 2s --timeout 10m`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWait,
}

func init() {
	rootCmd.AddCommand(startCmd, statusCmd, stopCmd, resultsCmd, waitCmd)

	f := startCmd.Flags()
	f.String("name", "", "display name for the test")
	f.StringP("method", "X", devsly.DefaultTestMethod, "HTTP method")
	f.DurationP("duration", "d", devsly.DefaultTestDuration, "test duration")
	f.IntP("users", "u", devsly.DefaultConcurrentUsers, "concurrent users")
	f.Duration("ramp-up", devsly.DefaultRampUp, "ramp-up time")
	f.StringArrayP("header", "H", nil, `request header as "Key: Value" (repeatable)`)
	f.String("body", "", "request body")
	f.Bool("wait", false, "wait for the test to finish and print its report")
	addWaitFlags(startCmd)

	addWaitFlags(waitCmd)
}

func addWaitFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", 0, "poll interval (default from client settings)")
	cmd.Flags().Duration("timeout", 0, "wait timeout (default from client settings)")
	cmd.Flags().BoolP("quiet", "q", false, "do not print progress while waiting")
}

// waitOptions turns the wait flags into SDK options.
func waitOptions(cmd *cobra.Command) []devsly.WaitOption {
	var opts []devsly.WaitOption
	if d, _ := cmd.Flags().GetDuration("interval"); d != 0 {
		opts = append(opts, devsly.WaitPollInterval(d))
	}
	if d, _ := cmd.Flags().GetDuration("timeout"); d != 0 {
		opts = append(opts, devsly.WaitTimeout(d))
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		errOut := cmd.ErrOrStderr()
		opts = append(opts, devsly.WaitObserver(func(p devsly.Progress) {
			fmt.Fprintln(errOut, formatProgress(p))
		}))
	}
	return opts
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	client, err := newClient(cmd, nil, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	f := cmd.Flags()
	name, _ := f.GetString("name")
	method, _ := f.GetString("method")
	duration, _ := f.GetDuration("duration")
	users, _ := f.GetInt("users")
	rampUp, _ := f.GetDuration("ramp-up")
	rawHeaders, _ := f.GetStringArray("header")
	body, _ := f.GetString("body")

	headers, err := parseHeaders(rawHeaders)
	if err != nil {
		return err
	}

	opts := []devsly.TestOption{
		devsly.WithMethod(method),
		devsly.WithDuration(duration),
		devsly.WithConcurrentUsers(users),
		devsly.WithHeaders(headers...),
	}
	if f.Changed("ramp-up") {
		opts = append(opts, devsly.WithRampUp(rampUp))
	}
	if name != "" {
		opts = append(opts, devsly.WithName(name))
	}
	if body != "" {
		opts = append(opts, devsly.WithBody(body))
	}

	cfg, err := devsly.NewTestConfig(args[0], opts...)
	if err != nil {
		return fmt.Errorf("invalid test: %w", err)
	}

	ctx := cmd.Context()
	handle, err := client.StartTest(ctx, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wait, _ := f.GetBool("wait"); !wait {
		if wantJSON(cmd) {
			return printJSON(out, handle)
		}
		fmt.Fprintln(out, handle.TestID)
		return nil
	}

	result, err := client.WaitForCompletion(ctx, handle.TestID, waitOptions(cmd)...)
	if err != nil {
		return fmt.Errorf("waiting for test %s: %w", handle.TestID, err)
	}
	return writeResult(cmd, result)
}

// parseHeaders converts "Key: Value" strings into key/value pairs.
func parseHeaders(raw []string) ([]string, error) {
	pairs := make([]string, 0, len(raw)*2)
	for _, h := range raw {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q: want \"Key: Value\"", h)
		}
		pairs = append(pairs, strings.TrimSpace(k), strings.TrimSpace(v))
	}
	return pairs, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd, nil, newLogger(cmd))
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.TestStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, status)
	}
	fmt.Fprintf(out, "%s %s %.0f%%\n", status.TestID, status.RawState, status.Progress)
	if status.Message != "" {
		fmt.Fprintf(out, "  %s\n", status.Message)
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd, nil, newLogger(cmd))
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.StopTest(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, resp)
	}
	if !resp.Success {
		return fmt.Errorf("stop not acknowledged: %s", resp.Message)
	}
	fmt.Fprintf(out, "stopped %s\n", args[0])
	return nil
}

func runResults(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd, nil, newLogger(cmd))
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.TestResults(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeResult(cmd, result)
}

func runWait(cmd *cobra.Command, args []string) error {
	client, err := newClient(cmd, nil, newLogger(cmd))
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	var failed []string

	start := time.Now()
	for outcome := range client.WaitAll(cmd.Context(), args, waitOptions(cmd)...) {
		if outcome.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", outcome.TestID, outcome.Err)
			failed = append(failed, outcome.TestID)
			continue
		}
		if err := writeResult(cmd, outcome.Result); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d waits failed after %s: %s",
			len(failed), len(args), time.Since(start).Truncate(time.Millisecond), strings.Join(failed, ", "))
	}
	if len(args) > 1 && !wantJSON(cmd) {
		fmt.Fprintf(out, "all %d tests finished\n", len(args))
	}
	return nil
}

func writeResult(cmd *cobra.Command, result *devsly.TestResult) error {
	if result == nil {
		return errors.New("empty result")
	}
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		if len(result.Raw) > 0 {
			_, err := fmt.Fprintln(out, string(result.Raw))
			return err
		}
		return printJSON(out, result)
	}
	printResult(out, result)
	return nil
}
