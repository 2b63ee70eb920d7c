package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of waiting on one job in a [Group].
type Outcome[R any] struct {
	// JobID identifies the job.
	JobID string

	// Result is the value returned by the result function. It is the zero
	// value when Err is non-nil.
	Result R

	// Err is the error returned by [Wait], if any.
	Err error

	// Elapsed is the time spent waiting on this job.
	Elapsed time.Duration

	// FinishedAt is when the wait returned.
	FinishedAt time.Time
}

// Group waits on several jobs concurrently.
//
// Each job gets its own independent [Wait] call. At most maxConcurrency waits
// run at once; the rest queue. Outcomes are emitted on [Group.Results] in
// completion order, and the channel is closed once every job has an outcome
// or the group is stopped.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Group[R any] struct {
	jobIDs         []string
	fetchStatus    StatusFunc
	fetchResult    ResultFunc[R]
	cfg            Config
	maxConcurrency int
	results        chan Outcome[R]
	logger         *slog.Logger
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewGroup creates a [Group] for the given job IDs.
//
// A maxConcurrency below 1 is treated as 1. A nil logger falls back to
// [slog.Default]. The logger is only used to report observer panics.
//
// The group must be started with [Group.Start]. Outcomes are available via
// [Group.Results].
func NewGroup[R any](jobIDs []string, fetchStatus StatusFunc, fetchResult ResultFunc[R], cfg Config, maxConcurrency int, logger *slog.Logger) *Group[R] {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ids := make([]string, len(jobIDs))
	copy(ids, jobIDs)

	return &Group[R]{
		jobIDs:         ids,
		fetchStatus:    fetchStatus,
		fetchResult:    fetchResult,
		cfg:            cfg,
		maxConcurrency: maxConcurrency,
		// one slot per job so workers never block on delivery
		results: make(chan Outcome[R], len(ids)),
		logger:  logger,
	}
}

// Results returns a receive-only channel of [Outcome] values.
//
// Exactly one outcome is sent per job unless the group is stopped first.
func (g *Group[R]) Results() <-chan Outcome[R] {
	return g.results
}

// Start begins waiting on all jobs in background goroutines.
//
// Start is non-blocking and idempotent. If Stop was called first, Start is a
// no-op. If ctx is nil, context.Background() is used.
func (g *Group[R]) Start(ctx context.Context) {
	g.mu.Lock()
	if g.started || g.stopped {
		g.mu.Unlock()
		return
	}
	g.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer g.closeOnce.Do(func() { close(g.results) })
		g.run(waitCtx)
	}()
}

// Stop cancels outstanding waits and blocks until every worker has returned.
//
// Jobs still waiting when Stop is called report an [ErrCancelled] outcome.
// Stop is idempotent and safe to call before Start.
func (g *Group[R]) Stop() {
	g.mu.Lock()
	if !g.stopped {
		g.stopped = true
		if g.cancel != nil {
			g.cancel()
		}
	}
	g.mu.Unlock()

	g.wg.Wait()

	// ensure channel is closed even if Start() was never called
	g.closeOnce.Do(func() { close(g.results) })
}

// run feeds job IDs to a fixed pool of workers and waits for them all.
func (g *Group[R]) run(ctx context.Context) {
	jobs := make(chan string, len(g.jobIDs))
	for _, id := range g.jobIDs {
		jobs <- id
	}
	close(jobs)

	workers := g.maxConcurrency
	if workers > len(g.jobIDs) {
		workers = len(g.jobIDs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				g.results <- g.waitOne(ctx, id)
			}
		}()
	}
	wg.Wait()
}

// waitOne runs a single Wait and packages its outcome.
func (g *Group[R]) waitOne(ctx context.Context, jobID string) Outcome[R] {
	cfg := g.cfg
	if cfg.Observer != nil {
		observer := cfg.Observer
		cfg.Observer = func(obs Observation) {
			g.safeObserve(observer, obs)
		}
	}

	start := time.Now()
	result, err := Wait(ctx, jobID, g.fetchStatus, g.fetchResult, cfg)
	finished := time.Now()

	return Outcome[R]{
		JobID:      jobID,
		Result:     result,
		Err:        err,
		Elapsed:    finished.Sub(start),
		FinishedAt: finished,
	}
}

// safeObserve calls the observer with panic recovery.
// A panicking observer is logged with a correlation ID and the wait goes on.
func (g *Group[R]) safeObserve(observer Observer, obs Observation) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("observer panic",
				"correlation_id", uuid.NewString(),
				"job_id", obs.JobID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	observer(obs)
}
