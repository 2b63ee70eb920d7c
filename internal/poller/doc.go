// Package poller waits for asynchronous server-side jobs to finish.
//
// A job is identified by an opaque ID. The caller supplies two capabilities:
// one that fetches the job's current [Status] and one that fetches its final
// result. [Wait] polls the status at a fixed interval until the job reaches a
// terminal state ("completed", "stopped" or "failed") or a deadline elapses,
// then fetches the result exactly once.
//
// The main components are:
//
//   - [Wait]: the polling loop for a single job
//   - [Config]: poll interval, timeout and optional progress [Observer]
//   - [Group]: waits on many jobs concurrently with a bounded worker pool
//
// Wait never retries and never logs. Transport errors returned by the
// capabilities are passed back unchanged; everything else is reported as
// [ErrTimeout], [ErrCancelled] or [ErrInvalidArgument].
//
// Users of the devsly SDK should not need to interact with this package
// directly. The root package wires it to the HTTP API.
package poller
