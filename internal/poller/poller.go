package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPollInterval is the delay between status checks.
	DefaultPollInterval = 5 * time.Second

	// DefaultTimeout bounds the total time spent waiting for one job.
	DefaultTimeout = 300 * time.Second
)

var (
	// ErrInvalidArgument is returned before any capability is invoked when
	// the job ID, a capability, or a duration is unusable.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout is returned when the deadline elapses before a terminal
	// state is observed.
	ErrTimeout = errors.New("timed out waiting for job")

	// ErrCancelled is returned when the caller's context is done. The
	// returned error also wraps the context error.
	ErrCancelled = errors.New("wait cancelled")
)

// Terminal job states.
const (
	StateCompleted = "completed"
	StateStopped   = "stopped"
	StateFailed    = "failed"
)

// IsTerminal reports whether state is one after which the job never changes.
// Comparison ignores case and surrounding whitespace.
func IsTerminal(state string) bool {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case StateCompleted, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// Status is a single snapshot of a job, as returned by a [StatusFunc].
type Status struct {
	// State is the server-reported state string.
	State string

	// Progress is an advisory completion percentage (0-100).
	Progress float64
}

// Observation describes a non-terminal status seen while waiting.
type Observation struct {
	JobID    string
	State    string
	Progress float64

	// Poll is the 1-based number of the status check that produced this
	// observation.
	Poll int

	// Elapsed is the time since the wait started.
	Elapsed time.Duration
}

// Observer receives progress observations. It is called synchronously from
// the polling loop and must not block.
type Observer func(Observation)

// StatusFunc fetches the current status of a job.
type StatusFunc func(ctx context.Context, jobID string) (Status, error)

// ResultFunc fetches the final result of a job. [Wait] calls it at most once.
type ResultFunc[R any] func(ctx context.Context, jobID string) (R, error)

// Config controls a single [Wait].
//
// Zero durations are not replaced with defaults; start from [DefaultConfig]
// when only some fields need changing.
type Config struct {
	// PollInterval is the delay between status checks. Must be positive.
	PollInterval time.Duration

	// Timeout bounds the total wait. Must be positive.
	Timeout time.Duration

	// Observer, if set, is called once per non-terminal status.
	Observer Observer

	clock clock
}

// DefaultConfig returns a Config with a 5s poll interval and a 300s timeout.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
	}
}

// Validate checks that both durations are positive.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidArgument, c.PollInterval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidArgument, c.Timeout)
	}
	return nil
}

// Wait polls fetchStatus until the job reaches a terminal state, then returns
// the value of a single fetchResult call.
//
// The result is returned for every terminal state, including "failed";
// callers inspect the result to tell success from failure.
//
// The deadline is checked before each status request, so a wait whose
// timeout has elapsed returns [ErrTimeout] without issuing another request.
// Cancelling ctx during the delay between polls returns [ErrCancelled]
// immediately. Errors from fetchStatus and fetchResult are returned as-is.
func Wait[R any](ctx context.Context, jobID string, fetchStatus StatusFunc, fetchResult ResultFunc[R], cfg Config) (R, error) {
	var zero R

	if strings.TrimSpace(jobID) == "" {
		return zero, fmt.Errorf("%w: job id is required", ErrInvalidArgument)
	}
	if fetchStatus == nil || fetchResult == nil {
		return zero, fmt.Errorf("%w: status and result functions are required", ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return zero, err
	}

	clk := cfg.clock
	if clk == nil {
		clk = realClock{}
	}

	start := clk.Now()
	var last Status

	for poll := 1; ; poll++ {
		elapsed := clk.Now().Sub(start)
		if elapsed >= cfg.Timeout {
			return zero, fmt.Errorf("%w: job %s still %q after %s (%d polls)",
				ErrTimeout, jobID, last.State, elapsed, poll-1)
		}
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%w: job %s: %w", ErrCancelled, jobID, err)
		}

		status, err := fetchStatus(ctx, jobID)
		if err != nil {
			return zero, err
		}

		if IsTerminal(status.State) {
			return fetchResult(ctx, jobID)
		}
		last = status

		if cfg.Observer != nil {
			cfg.Observer(Observation{
				JobID:    jobID,
				State:    status.State,
				Progress: status.Progress,
				Poll:     poll,
				Elapsed:  clk.Now().Sub(start),
			})
		}

		if err := clk.Sleep(ctx, cfg.PollInterval); err != nil {
			return zero, fmt.Errorf("%w: job %s: %w", ErrCancelled, jobID, err)
		}
	}
}

// clock abstracts time so the polling loop can be tested without sleeping.
type clock interface {
	Now() time.Time

	// Sleep blocks for d, or until ctx is done in which case it returns
	// ctx.Err().
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
