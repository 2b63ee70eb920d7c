package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the polling loop sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// scriptedJob replays a fixed sequence of statuses and records every call.
// Once the script is exhausted the last status repeats.
type scriptedJob struct {
	mu        sync.Mutex
	statuses  []Status
	result    map[string]any
	statusErr error
	resultErr error
	calls     []string
}

func (j *scriptedJob) status(_ context.Context, _ string) (Status, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := j.count("status")
	j.calls = append(j.calls, "status")
	if j.statusErr != nil {
		return Status{}, j.statusErr
	}
	if n >= len(j.statuses) {
		return j.statuses[len(j.statuses)-1], nil
	}
	return j.statuses[n], nil
}

func (j *scriptedJob) fetchResult(_ context.Context, _ string) (map[string]any, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, "result")
	if j.resultErr != nil {
		return nil, j.resultErr
	}
	return j.result, nil
}

// count must be called with mu held.
func (j *scriptedJob) count(kind string) int {
	n := 0
	for _, c := range j.calls {
		if c == kind {
			n++
		}
	}
	return n
}

func (j *scriptedJob) Calls() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func (j *scriptedJob) Count(kind string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count(kind)
}

func testConfig(clk clock) Config {
	cfg := DefaultConfig()
	cfg.clock = clk
	return cfg
}

func TestWait_ReturnsResultAfterRunningSequence(t *testing.T) {
	job := &scriptedJob{
		statuses: []Status{
			{State: "running", Progress: 10},
			{State: "running", Progress: 55},
			{State: "completed", Progress: 100},
		},
		result: map[string]any{"state": "completed", "total": 100, "success": 98},
	}

	var observed []Observation
	clk := newFakeClock()
	cfg := testConfig(clk)
	cfg.Observer = func(obs Observation) { observed = append(observed, obs) }

	got, err := Wait(context.Background(), "job-1", job.status, job.fetchResult, cfg)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"state": "completed", "total": 100, "success": 98}, got)
	assert.Equal(t, []string{"status", "status", "status", "result"}, job.Calls())
	assert.Equal(t, []time.Duration{DefaultPollInterval, DefaultPollInterval}, clk.Sleeps())

	require.Len(t, observed, 2)
	assert.Equal(t, "job-1", observed[0].JobID)
	assert.Equal(t, "running", observed[0].State)
	assert.Equal(t, 10.0, observed[0].Progress)
	assert.Equal(t, 1, observed[0].Poll)
	assert.Equal(t, time.Duration(0), observed[0].Elapsed)
	assert.Equal(t, 55.0, observed[1].Progress)
	assert.Equal(t, 2, observed[1].Poll)
	assert.Equal(t, DefaultPollInterval, observed[1].Elapsed)
}

func TestWait_EveryTerminalStateFetchesResult(t *testing.T) {
	tests := []struct {
		name  string
		state string
	}{
		{"completed", "completed"},
		{"stopped", "stopped"},
		{"failed", "failed"},
		{"mixed case and padding", "  Failed "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &scriptedJob{
				statuses: []Status{{State: "running"}, {State: tt.state}},
				result:   map[string]any{"state": tt.state},
			}

			got, err := Wait(context.Background(), "job-1", job.status, job.fetchResult, testConfig(newFakeClock()))
			require.NoError(t, err)
			assert.Equal(t, tt.state, got["state"])
			assert.Equal(t, 1, job.Count("result"))
			assert.Equal(t, 2, job.Count("status"))
		})
	}
}

func TestWait_TerminalOnFirstPollDoesNotSleep(t *testing.T) {
	job := &scriptedJob{
		statuses: []Status{{State: "completed", Progress: 100}},
		result:   map[string]any{"ok": true},
	}
	clk := newFakeClock()

	_, err := Wait(context.Background(), "job-1", job.status, job.fetchResult, testConfig(clk))
	require.NoError(t, err)
	assert.Empty(t, clk.Sleeps())
	assert.Equal(t, []string{"status", "result"}, job.Calls())
}

func TestWait_UnknownStatesKeepPolling(t *testing.T) {
	job := &scriptedJob{
		statuses: []Status{
			{State: "queued"},
			{State: "warming_up"},
			{State: ""},
			{State: "stopped"},
		},
		result: map[string]any{},
	}

	_, err := Wait(context.Background(), "job-1", job.status, job.fetchResult, testConfig(newFakeClock()))
	require.NoError(t, err)
	assert.Equal(t, 4, job.Count("status"))
}

func TestWait_Timeout(t *testing.T) {
	job := &scriptedJob{statuses: []Status{{State: "running", Progress: 40}}}
	clk := newFakeClock()
	cfg := testConfig(clk)
	cfg.PollInterval = 5 * time.Second
	cfg.Timeout = 12 * time.Second

	_, err := Wait(context.Background(), "job-1", job.status, job.fetchResult, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "job-1")
	assert.Contains(t, err.Error(), `"running"`)

	// polls at 0s, 5s and 10s; deadline hit at 15s
	assert.Equal(t, 3, job.Count("status"))
	assert.Equal(t, 0, job.Count("result"))
}

func TestWait_TimeoutAtBoundarySkipsFinalPoll(t *testing.T) {
	job := &scriptedJob{statuses: []Status{{State: "running"}}}
	cfg := testConfig(newFakeClock())
	cfg.PollInterval = 5 * time.Second
	cfg.Timeout = 10 * time.Second

	_, err := Wait(context.Background(), "job-1", job.status, job.fetchResult, cfg)
	assert.ErrorIs(t, err, ErrTimeout)

	// polls at 0s and 5s; at exactly 10s the deadline wins
	assert.Equal(t, 2, job.Count("status"))
	assert.Equal(t, 0, job.Count("result"))
}

func TestWait_InvalidArguments(t *testing.T) {
	job := &scriptedJob{statuses: []Status{{State: "completed"}}}

	tests := []struct {
		name        string
		jobID       string
		status      StatusFunc
		result      ResultFunc[map[string]any]
		modify      func(*Config)
		wantMessage string
	}{
		{"zero poll interval", "job-1", job.status, job.fetchResult, func(c *Config) { c.PollInterval = 0 }, "poll interval"},
		{"negative poll interval", "job-1", job.status, job.fetchResult, func(c *Config) { c.PollInterval = -time.Second }, "poll interval"},
		{"zero timeout", "job-1", job.status, job.fetchResult, func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"negative timeout", "job-1", job.status, job.fetchResult, func(c *Config) { c.Timeout = -time.Minute }, "timeout"},
		{"empty job id", "", job.status, job.fetchResult, func(*Config) {}, "job id"},
		{"blank job id", "   ", job.status, job.fetchResult, func(*Config) {}, "job id"},
		{"nil status func", "job-1", nil, job.fetchResult, func(*Config) {}, "functions are required"},
		{"nil result func", "job-1", job.status, nil, func(*Config) {}, "functions are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(newFakeClock())
			tt.modify(&cfg)

			_, err := Wait(context.Background(), tt.jobID, tt.status, tt.result, cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Contains(t, err.Error(), tt.wantMessage)
		})
	}

	assert.Empty(t, job.Calls(), "no capability may be invoked for invalid arguments")
}

func TestWait_StatusErrorPropagatesUnchanged(t *testing.T) {
	errTransport := errors.New("connection reset by peer")
	job := &scriptedJob{statusErr: errTransport}

	_, err := Wait(context.Background(), "job-1", job.status, job.fetchResult, testConfig(newFakeClock()))
	assert.Equal(t, errTransport, err)
	assert.Equal(t, []string{"status"}, job.Calls())
}

func TestWait_StatusErrorAfterProgressIsNotRetried(t *testing.T) {
	errTransport := errors.New("dial tcp: i/o timeout")
	calls := 0
	status := func(context.Context, string) (Status, error) {
		calls++
		if calls == 2 {
			return Status{}, errTransport
		}
		return Status{State: "running"}, nil
	}
	job := &scriptedJob{}

	_, err := Wait(context.Background(), "job-1", status, job.fetchResult, testConfig(newFakeClock()))
	assert.Equal(t, errTransport, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, job.Count("result"))
}

func TestWait_ResultErrorPropagatesUnchanged(t *testing.T) {
	errTransport := errors.New("unexpected EOF")
	job := &scriptedJob{
		statuses:  []Status{{State: "completed"}},
		resultErr: errTransport,
	}

	_, err := Wait(context.Background(), "job-1", job.status, job.fetchResult, testConfig(newFakeClock()))
	assert.Equal(t, errTransport, err)
	assert.Equal(t, 1, job.Count("result"))
}

func TestWait_CancelDuringDelayReturnsPromptly(t *testing.T) {
	job := &scriptedJob{statuses: []Status{{State: "running"}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Second
	cfg.Timeout = time.Minute
	cfg.Observer = func(Observation) {
		// cancel once the loop is about to sleep
		time.AfterFunc(20*time.Millisecond, cancel)
	}

	start := time.Now()
	_, err := Wait(ctx, "job-1", job.status, job.fetchResult, cfg)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 2*time.Second, "cancellation must not wait out the poll interval")
	assert.Equal(t, 1, job.Count("status"))
	assert.Equal(t, 0, job.Count("result"))
}

func TestWait_DeadlineContextReportsCancelled(t *testing.T) {
	job := &scriptedJob{statuses: []Status{{State: "running"}}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Second

	_, err := Wait(ctx, "job-1", job.status, job.fetchResult, cfg)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWait_AlreadyCancelledContext(t *testing.T) {
	job := &scriptedJob{statuses: []Status{{State: "completed"}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Wait(ctx, "job-1", job.status, job.fetchResult, testConfig(newFakeClock()))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, job.Calls())
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{"completed", "stopped", "failed", "COMPLETED", " stopped\n"} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []string{"running", "pending", "queued", "", "complete", "cancelled"} {
		assert.False(t, IsTerminal(s), s)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.Timeout)
	assert.Nil(t, cfg.Observer)
	assert.NoError(t, cfg.Validate())
}
