package devsly

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/devsly/devsly-go/internal/poller"
)

// Progress is a non-terminal status observed while waiting for a test.
type Progress struct {
	TestID   string
	State    State
	RawState string
	// Progress is the advisory completion percentage, 0 to 100.
	Progress float64
	// Poll counts status checks for this wait, starting at 1.
	Poll    int
	Elapsed time.Duration
}

// waitConfig holds per-wait overrides.
type waitConfig struct {
	pollInterval time.Duration
	timeout      time.Duration
	observers    []func(Progress)
}

// WaitOption customises a single call to [Client.WaitForCompletion],
// [Client.WaitAll] or [Client.RunTest].
type WaitOption func(*waitConfig)

// WaitPollInterval overrides the client's poll interval for one wait.
// Non-positive values are rejected by the wait with [ErrInvalidArgument].
func WaitPollInterval(d time.Duration) WaitOption {
	return func(cfg *waitConfig) {
		cfg.pollInterval = d
	}
}

// WaitTimeout overrides the client's wait timeout for one wait.
// Non-positive values are rejected by the wait with [ErrInvalidArgument].
func WaitTimeout(d time.Duration) WaitOption {
	return func(cfg *waitConfig) {
		cfg.timeout = d
	}
}

// WaitObserver registers fn to receive every non-terminal status seen during
// one wait. It runs after any client-level [WithProgressCallback] callbacks.
// Nil is ignored.
func WaitObserver(fn func(Progress)) WaitOption {
	return func(cfg *waitConfig) {
		if fn != nil {
			cfg.observers = append(cfg.observers, fn)
		}
	}
}

// WaitOutcome is the result of one test in [Client.WaitAll].
type WaitOutcome struct {
	TestID     string
	Result     *TestResult
	Err        error
	Elapsed    time.Duration
	FinishedAt time.Time
}

// WaitForCompletion polls a test until it reaches a terminal state, then
// returns its results.
//
// The status endpoint is polled every poll interval. Once the test is
// completed, stopped or failed the results endpoint is called exactly once
// and its report is returned, whatever the final state. A failed test may
// therefore return a partial report; inspect [TestResult.State].
//
// Errors:
//   - [ErrInvalidArgument] for an empty test ID or non-positive durations.
//   - [ErrTimeout] if the wait timeout elapses first.
//   - [ErrCancelled] if ctx is done before a poll or during the delay.
//   - Errors from the status and results requests are returned unchanged,
//     without retry.
//
// Example:
//
//	result, err := client.WaitForCompletion(ctx, handle.TestID,
//	    devsly.WaitObserver(func(p devsly.Progress) {
//	        fmt.Printf("%s: %.0f%%\n", p.State, p.Progress)
//	    }),
//	)
func (c *Client) WaitForCompletion(ctx context.Context, testID string, opts ...WaitOption) (*TestResult, error) {
	return poller.Wait(ctx, testID, c.fetchStatus, c.fetchResult, c.pollerConfig(opts))
}

// RunTest starts a test and waits for it to finish.
//
// If the wait fails after the test was started, the returned handle is
// non-nil so callers can stop or inspect the test.
func (c *Client) RunTest(ctx context.Context, cfg TestConfig, opts ...WaitOption) (*TestHandle, *TestResult, error) {
	handle, err := c.StartTest(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Info("load test started",
		"test_id", handle.TestID,
		"name", cfg.Name(),
		"target_url", cfg.TargetURL(),
	)

	result, err := c.WaitForCompletion(ctx, handle.TestID, opts...)
	if err != nil {
		return handle, nil, fmt.Errorf("waiting for test %s: %w", handle.TestID, err)
	}
	return handle, result, nil
}

// WaitAll waits on several tests concurrently and streams one
// [WaitOutcome] per test in completion order.
//
// At most the client's max concurrency tests are polled at once. The
// channel is closed after the last outcome. Cancelling ctx ends outstanding
// waits with [ErrCancelled].
func (c *Client) WaitAll(ctx context.Context, testIDs []string, opts ...WaitOption) <-chan WaitOutcome {
	group := poller.NewGroup(testIDs, c.fetchStatus, c.fetchResult, c.pollerConfig(opts), c.maxConcurrency, c.logger)

	out := make(chan WaitOutcome, len(testIDs))
	group.Start(ctx)

	go func() {
		defer close(out)
		defer group.Stop()
		for o := range group.Results() {
			out <- WaitOutcome{
				TestID:     o.JobID,
				Result:     o.Result,
				Err:        o.Err,
				Elapsed:    o.Elapsed,
				FinishedAt: o.FinishedAt,
			}
		}
	}()

	return out
}

// pollerConfig merges client defaults with per-wait options.
func (c *Client) pollerConfig(opts []WaitOption) poller.Config {
	wc := &waitConfig{
		pollInterval: c.pollInterval,
		timeout:      c.waitTimeout,
	}
	for _, opt := range opts {
		opt(wc)
	}

	observers := make([]func(Progress), 0, len(c.progressCallbacks)+len(wc.observers))
	observers = append(observers, c.progressCallbacks...)
	observers = append(observers, wc.observers...)

	cfg := poller.Config{
		PollInterval: wc.pollInterval,
		Timeout:      wc.timeout,
	}
	if len(observers) > 0 {
		logger := c.logger
		cfg.Observer = func(obs poller.Observation) {
			p := Progress{
				TestID:   obs.JobID,
				State:    ParseState(obs.State),
				RawState: obs.State,
				Progress: obs.Progress,
				Poll:     obs.Poll,
				Elapsed:  obs.Elapsed,
			}
			for _, fn := range observers {
				invokeObserverSafe(fn, p, logger)
			}
		}
	}
	return cfg
}

func (c *Client) fetchStatus(ctx context.Context, testID string) (poller.Status, error) {
	status, err := c.TestStatus(ctx, testID)
	if err != nil {
		return poller.Status{}, err
	}
	return poller.Status{State: status.RawState, Progress: status.Progress}, nil
}

func (c *Client) fetchResult(ctx context.Context, testID string) (*TestResult, error) {
	return c.TestResults(ctx, testID)
}

// invokeObserverSafe calls a progress observer with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeObserverSafe(fn func(Progress), p Progress, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("progress observer panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"test_id", p.TestID,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(p)
}
