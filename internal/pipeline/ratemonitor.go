package pipeline

import (
	"math"
	"sync/atomic"
)

// WindowMillis is the length of a frame rate window.
const WindowMillis = 1000

// RateMonitor counts completed frames over one-second windows.
//
// The rate reported during a window is the frame count of the previous
// window. It is only updated when a completion lands at or after the
// window boundary, so the value goes stale when frames stop arriving.
//
// RecordFrameCompletion must be called from a single goroutine. Rate may
// be called from any goroutine.
type RateMonitor struct {
	windowStart    int64
	framesInWindow int
	rate           atomic.Uint64 // math.Float64bits of the last computed rate
}

// NewRateMonitor starts the first window at startMillis.
func NewRateMonitor(startMillis int64) *RateMonitor {
	return &RateMonitor{windowStart: startMillis}
}

// RecordFrameCompletion counts one completed frame at nowMillis and returns
// the current rate.
func (m *RateMonitor) RecordFrameCompletion(nowMillis int64) float64 {
	m.framesInWindow++

	if nowMillis-m.windowStart >= WindowMillis {
		m.rate.Store(math.Float64bits(float64(m.framesInWindow)))
		m.framesInWindow = 0
		m.windowStart = nowMillis
	}

	return m.Rate()
}

// Rate returns the rate computed at the last window boundary, or 0 before
// the first window has elapsed.
func (m *RateMonitor) Rate() float64 {
	return math.Float64frombits(m.rate.Load())
}
