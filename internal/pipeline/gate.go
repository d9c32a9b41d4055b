// Package pipeline runs captured frames through the detector one at a time
// and publishes the results for render sinks.
package pipeline

import "sync/atomic"

// Gate admits at most one frame into the detector at a time. Frames that
// arrive while a frame is in flight are rejected, never queued.
type Gate struct {
	busy atomic.Bool
}

// TryAdmit marks the gate busy and returns true if no frame is in flight.
// It returns false if the caller must drop its frame.
func (g *Gate) TryAdmit() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release marks the in-flight frame as finished. It must be called exactly
// once per admitted frame, on every exit path.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// Busy reports whether a frame is currently in flight.
func (g *Gate) Busy() bool {
	return g.busy.Load()
}
