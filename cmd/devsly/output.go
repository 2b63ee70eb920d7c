package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	devsly "github.com/devsly/devsly-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "print API responses as JSON")
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult writes a human-readable load test report.
func printResult(w io.Writer, r *devsly.TestResult) {
	state := "unknown"
	if r.State != nil {
		state = *r.State
	}
	fmt.Fprintf(w, "Test %s (%s)\n", r.TestID, state)
	if r.Error != "" {
		fmt.Fprintf(w, "  Error:        %s\n", r.Error)
	}
	if r.TotalRequests != nil {
		line := fmt.Sprintf("%d total, %s ok, %s failed",
			*r.TotalRequests, formatCount(r.SuccessfulRequests), formatCount(r.FailedRequests))
		if rate, ok := r.SuccessRate(); ok {
			line += fmt.Sprintf(" (%.1f%%)", rate*100)
		}
		fmt.Fprintf(w, "  Requests:     %s\n", line)
	}
	if r.RequestsPerSecond != nil {
		fmt.Fprintf(w, "  Throughput:   %.1f req/s\n", *r.RequestsPerSecond)
	}
	if r.AvgResponseTime != nil {
		fmt.Fprintf(w, "  Avg response: %.1f ms\n", *r.AvgResponseTime)
	}
	if p := r.Percentiles; p != nil {
		fmt.Fprintf(w, "  Percentiles:  p50 %.0fms, p90 %.0fms, p95 %.0fms, p99 %.0fms\n",
			p.P50, p.P90, p.P95, p.P99)
	}
}

func formatCount(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}

func formatProgress(p devsly.Progress) string {
	return fmt.Sprintf("%s %s %3.0f%% (poll %d, %s)",
		p.TestID, strings.ToLower(p.RawState), p.Progress, p.Poll, p.Elapsed.Truncate(100*time.Millisecond))
}
