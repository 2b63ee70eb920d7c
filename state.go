package devsly

import (
	"strings"

	"github.com/devsly/devsly-go/internal/poller"
)

// State is the lifecycle state of a load test as reported by the API.
//
// The server may introduce states this SDK does not know about. Those parse
// to [StateUnknown]; the original string stays available as
// [TestStatus].RawState. Unknown states are never terminal, so a wait
// keeps polling through them.
type State string

const (
	// StatePending indicates the test was accepted but has not started.
	StatePending State = "pending"

	// StateQueued indicates the test is waiting for load-generation capacity.
	StateQueued State = "queued"

	// StateRunning indicates the test is generating load.
	StateRunning State = "running"

	// StateCompleted indicates the test ran for its full duration.
	StateCompleted State = poller.StateCompleted

	// StateStopped indicates the test was stopped before its duration ended.
	StateStopped State = poller.StateStopped

	// StateFailed indicates the test could not run to completion.
	StateFailed State = poller.StateFailed

	// StateUnknown is any state string not listed above.
	StateUnknown State = "unknown"
)

// ParseState maps a server state string to a [State].
// Matching ignores case and surrounding whitespace.
func ParseState(s string) State {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case StatePending, StateQueued, StateRunning, StateCompleted, StateStopped, StateFailed:
		return st
	default:
		return StateUnknown
	}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further state change can follow s.
func (s State) IsTerminal() bool {
	return poller.IsTerminal(string(s))
}
