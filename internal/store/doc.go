// Package store keeps the latest snapshot of every load test a run is
// waiting on, and fans updates out to subscribers.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [JobSnapshot]: Storage representation of a job's progress
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
package store
