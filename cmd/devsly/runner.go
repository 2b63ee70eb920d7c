package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	devsly "github.com/devsly/devsly-go"
	"github.com/devsly/devsly-go/internal/history"
	"github.com/devsly/devsly-go/internal/store"
)

// recorder persists runs. Implemented by *history.SQLite.
type recorder interface {
	RecordStart(ctx context.Context, run history.Run) error
	RecordOutcome(ctx context.Context, id string, outcome history.Outcome) error
}

// runner starts a suite of tests and follows them to completion, mirroring
// progress into the job store and, when configured, the history database.
type runner struct {
	client  *devsly.Client
	jobs    store.Store
	history recorder
	logger  *slog.Logger
}

// summary is the outcome of one test in a suite.
type summary struct {
	Name   string             `json:"name"`
	TestID string             `json:"test_id,omitempty"`
	State  string             `json:"state,omitempty"`
	Result *devsly.TestResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// run starts every test, waits for all of them and returns one summary per
// test in input order. A test that fails to start does not stop the others.
func (r *runner) run(ctx context.Context, tests []devsly.TestConfig) []summary {
	summaries := make([]summary, len(tests))
	index := make(map[string]int, len(tests))
	var ids []string

	for i, tc := range tests {
		summaries[i].Name = tc.Name()
		if ctx.Err() != nil {
			summaries[i].Error = "not started: " + ctx.Err().Error()
			continue
		}

		handle, err := r.client.StartTest(ctx, tc)
		if err != nil {
			r.logger.Error("failed to start test", "name", tc.Name(), "error", err)
			summaries[i].Error = err.Error()
			continue
		}

		r.logger.Info("load test started", "name", tc.Name(), "test_id", handle.TestID)
		summaries[i].TestID = handle.TestID
		summaries[i].State = handle.Status
		index[handle.TestID] = i
		ids = append(ids, handle.TestID)

		now := time.Now()
		state := handle.Status
		if state == "" {
			state = string(devsly.StatePending)
		}
		r.jobs.Update(store.JobSnapshot{
			ID:        handle.TestID,
			Name:      tc.Name(),
			TargetURL: tc.TargetURL(),
			State:     state,
			StartedAt: now,
			UpdatedAt: now,
		})
		if r.history != nil {
			err := r.history.RecordStart(ctx, history.Run{
				ID:        handle.TestID,
				Name:      tc.Name(),
				TargetURL: tc.TargetURL(),
				State:     state,
				StartedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				r.logger.Warn("failed to record run start", "test_id", handle.TestID, "error", err)
			}
		}
	}

	if len(ids) == 0 {
		return summaries
	}

	for outcome := range r.client.WaitAll(ctx, ids, devsly.WaitObserver(r.observe)) {
		i := index[outcome.TestID]
		s := &summaries[i]
		s.Result = outcome.Result
		if outcome.Err != nil {
			s.Error = outcome.Err.Error()
		}
		if res := outcome.Result; res != nil && res.State != nil {
			s.State = *res.State
		}
		r.finish(outcome, s.State)
	}

	return summaries
}

// observe mirrors a progress report into the job store.
func (r *runner) observe(p devsly.Progress) {
	snap, ok := r.jobs.Get(p.TestID)
	if !ok {
		return
	}
	snap.State = p.RawState
	snap.Progress = p.Progress
	snap.Polls = p.Poll
	snap.UpdatedAt = time.Now()
	r.jobs.Update(snap)
}

// finish records the end of a wait in the store and the history.
func (r *runner) finish(o devsly.WaitOutcome, state string) {
	snap, ok := r.jobs.Get(o.TestID)
	if !ok {
		return
	}
	if state != "" {
		snap.State = state
	}
	finishedAt := o.FinishedAt
	snap.FinishedAt = &finishedAt
	snap.UpdatedAt = finishedAt

	var resultJSON []byte
	if o.Result != nil {
		resultJSON = o.Result.Raw
		if len(resultJSON) == 0 {
			resultJSON, _ = json.Marshal(o.Result)
		}
		snap.Result = resultJSON
		snap.Progress = 100
	}
	var errMsg string
	if o.Err != nil {
		errMsg = o.Err.Error()
		snap.Error = &errMsg
		r.logger.Warn("wait ended with error", "test_id", o.TestID, "error", errMsg)
	} else {
		r.logger.Info("load test finished", "test_id", o.TestID, "state", snap.State,
			"elapsed_ms", o.Elapsed.Milliseconds())
	}
	r.jobs.Update(snap)

	if r.history == nil {
		return
	}
	// the run context may already be cancelled; the outcome should still land
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.history.RecordOutcome(ctx, o.TestID, history.Outcome{
		State:      snap.State,
		FinishedAt: finishedAt,
		ResultJSON: string(resultJSON),
		Error:      errMsg,
	})
	if err != nil {
		r.logger.Warn("failed to record run outcome", "test_id", o.TestID, "error", err)
	}
}
