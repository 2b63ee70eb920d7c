package store

import (
	"encoding/json"
	"time"
)

// JobSnapshot is the latest known state of one load test.
//
// JobSnapshot is the storage representation used by the REST API and SSE
// stream. It is decoupled from the SDK types so the wire format of the
// local job server can evolve separately from the Devsly API.
type JobSnapshot struct {
	// ID is the test ID assigned by the API.
	ID string `json:"id"`

	// Name is the display name from the run configuration.
	Name string `json:"name"`

	// TargetURL is the URL under load.
	TargetURL string `json:"target_url"`

	// State is the raw state string last reported by the API.
	State string `json:"state"`

	// Progress is the advisory completion percentage, 0 to 100.
	Progress float64 `json:"progress"`

	// Polls counts status checks made so far.
	Polls int `json:"polls"`

	// StartedAt is when the test was submitted.
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is when this snapshot was recorded.
	UpdatedAt time.Time `json:"updated_at"`

	// FinishedAt is set once the wait has ended, successfully or not.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Result is the final report as returned by the API.
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains the error message if the wait failed.
	Error *string `json:"error"`
}

// Done reports whether the wait for this job has ended.
func (s JobSnapshot) Done() bool {
	return s.FinishedAt != nil
}

// Store defines the interface for storing and subscribing to job updates.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows real-time updates to be pushed to connected clients
// (e.g., via Server-Sent Events).
type Store interface {
	// Update stores a snapshot and notifies all subscribers.
	// Snapshots are keyed by ID, so subsequent updates replace previous values.
	Update(snapshot JobSnapshot)

	// Get returns the snapshot for id, and whether it exists.
	Get(id string) (JobSnapshot, bool)

	// GetAll returns all stored snapshots ordered by start time.
	// The returned slice is a copy; modifications do not affect the store.
	GetAll() []JobSnapshot

	// Subscribe returns a channel that receives job updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan JobSnapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan JobSnapshot)
}
