// Package server provides a small HTTP API over the jobs of a run.
//
// It serves JSON snapshots from a [store.Store] and streams updates to
// clients with Server-Sent Events, so a long `devsly run` can be watched
// from a browser or curl while it polls.
package server
