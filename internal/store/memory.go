package store

import (
	"sort"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Snapshots are keyed by job ID, with new snapshots replacing previous
// values. Subscribers receive updates via buffered channels (buffer size
// 100). Updates are sent non-blocking; if a subscriber's buffer is full, the
// update is dropped for that subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	jobs        map[string]JobSnapshot
	subscribers map[chan JobSnapshot]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[string]JobSnapshot),
		subscribers: make(map[chan JobSnapshot]struct{}),
	}
}

// Update stores a [JobSnapshot] and notifies all subscribers.
func (m *MemoryStore) Update(snapshot JobSnapshot) {
	m.mu.Lock()
	m.jobs[snapshot.ID] = snapshot
	m.mu.Unlock()

	m.notifySubscribers(snapshot)
}

// Get returns the snapshot stored for id.
func (m *MemoryStore) Get(id string) (JobSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.jobs[id]
	return s, ok
}

// GetAll returns a snapshot of all stored jobs, oldest first. Jobs started
// at the same instant are ordered by ID.
func (m *MemoryStore) GetAll() []JobSnapshot {
	m.mu.RLock()
	results := make([]JobSnapshot, 0, len(m.jobs))
	for _, s := range m.jobs {
		results = append(results, s)
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if !results[i].StartedAt.Equal(results[j].StartedAt) {
			return results[i].StartedAt.Before(results[j].StartedAt)
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan JobSnapshot {
	ch := make(chan JobSnapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan JobSnapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// map keys are bidirectional channels, so compare rather than index
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the snapshot to all active subscribers without
// blocking; a full buffer drops the message for that subscriber.
func (m *MemoryStore) notifySubscribers(snapshot JobSnapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
