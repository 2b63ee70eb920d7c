package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	devsly "github.com/devsly/devsly-go"
	"github.com/devsly/devsly-go/internal/mockapi"
)

const (
	mockAddr   = "localhost:9999"
	demoAPIKey = "demo-key"
)

func main() {
	// start mock API (see mock_server.go)
	go StartMockAPI(mockAddr, demoAPIKey)
	time.Sleep(100 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client, err := devsly.New(demoAPIKey,
		devsly.WithBaseURL("http://"+mockAddr+mockapi.APIPrefix),
		devsly.WithPollInterval(500*time.Millisecond),
		devsly.WithWaitTimeout(time.Minute),
		devsly.WithLogger(logger),
		devsly.WithProgressCallback(func(p devsly.Progress) {
			fmt.Printf("  %-36s %-8s %3.0f%%\n", p.TestID, p.RawState, p.Progress)
		}),
	)
	if err != nil {
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// matrix: 2 services x 2 envs = 4 tests from one declaration
	tests, err := devsly.NewTestMatrix("API",
		devsly.WithURLTemplate("https://{{.env}}.example.com/{{.svc}}/health"),
		devsly.WithDimensions(map[string][]string{
			"svc": {"users", "orders"},
			"env": {"prod", "staging"},
		}),
		devsly.WithTestOptions(
			devsly.WithConcurrentUsers(25),
			devsly.WithDuration(30*time.Second),
		),
	)
	if err != nil {
		slog.Error("failed to create test matrix", "error", err)
		os.Exit(1)
	}

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	names := make(map[string]string, len(tests))
	var ids []string
	for _, tc := range tests {
		handle, err := client.StartTest(ctx, tc)
		if err != nil {
			slog.Error("failed to start test", "name", tc.Name(), "error", err)
			os.Exit(1)
		}
		names[handle.TestID] = tc.Name()
		ids = append(ids, handle.TestID)
	}

	fmt.Printf("\nWaiting for %d tests...\n", len(ids))
	for outcome := range client.WaitAll(ctx, ids) {
		if outcome.Err != nil {
			fmt.Printf("%s: %v\n", names[outcome.TestID], outcome.Err)
			continue
		}
		r := outcome.Result
		rate, _ := r.SuccessRate()
		fmt.Printf("%-22s %d requests, %.1f%% ok, p95 %.0fms (%s)\n",
			names[outcome.TestID], *r.TotalRequests, rate*100, r.Percentiles.P95, outcome.Elapsed.Round(time.Millisecond))
	}

	// network tools share the same client
	dns, err := client.DNSLookup(ctx, "example.com", devsly.RecordMX)
	if err != nil {
		slog.Error("dns lookup failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("\nMX records for %s:\n", dns.Domain)
	for _, rec := range dns.Records {
		var mx struct {
			Priority int    `json:"priority"`
			Exchange string `json:"exchange"`
		}
		if err := rec.Decode(&mx); err == nil {
			fmt.Printf("  %2d %s\n", mx.Priority, mx.Exchange)
		}
	}
}
