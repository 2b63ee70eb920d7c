// Package devsly is a Go client for the Devsly API: asynchronous HTTP load
// tests and network lookup tools.
//
// Load tests run on Devsly's infrastructure. Starting one returns a test ID
// immediately; the client then polls the status endpoint until the test is
// completed, stopped or failed, and fetches the final report once.
//
// # Quick Start
//
//	client, err := devsly.New(os.Getenv("DEVSLY_API_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	cfg, _ := devsly.NewTestConfig("https://api.example.com/users",
//	    devsly.WithConcurrentUsers(50),
//	    devsly.WithDuration(2*time.Minute),
//	)
//
//	_, result, err := client.RunTest(ctx, cfg)
//
// # Configuration
//
// The client uses the functional options pattern:
//
//	client, err := devsly.New(key,
//	    devsly.WithPollInterval(2*time.Second),
//	    devsly.WithWaitTimeout(10*time.Minute),
//	    devsly.WithLogger(logger),
//	)
//
// Per-wait overrides are passed to [Client.WaitForCompletion] as
// [WaitOption] values such as [WaitPollInterval], [WaitTimeout] and
// [WaitObserver].
//
// # Errors
//
// Waits fail with [ErrTimeout], [ErrCancelled] or [ErrInvalidArgument].
// Requests fail with an [*APIError] (matching [ErrAPI]) for non-2xx
// responses, [ErrTransport] when no response arrived, and [ErrDecode] for
// unexpected bodies. Use errors.Is and errors.As to tell them apart.
//
// # Architecture
//
//   - internal/poller: generic wait-for-completion loop and concurrent group
//   - internal/transport: pooled HTTP client
//   - internal/store: in-memory job snapshots with pub/sub
//   - internal/server: REST and Server-Sent Events view of running jobs
//   - internal/history: SQLite record of past runs
//   - internal/mockapi: in-process fake of the API for tests and demos
//
// The internal packages are not part of the public API and may change
// without notice.
package devsly
