// Package perf tracks achieved throughput of the compositing loop.
//
// Monitor produces the one-second sampled frame rate shown to operators.
// CadenceTracker keeps a short history of frame timestamps and derives
// jitter and stability figures for health reporting.
package perf

import "time"

// rateWindow is the sampling window of Monitor.
const rateWindow = time.Second

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Monitor counts frames and converts them into a frame rate once per
// one-second window.
//
// This is a fixed sampling window, not a sliding average: between window
// boundaries RecordFrame returns the last finalized rate.
//
// Monitor is not safe for concurrent use; the compositing loop owns it.
type Monitor struct {
	clock       Clock
	count       int
	windowStart time.Time
	rate        float64
}

// NewMonitor creates a monitor whose first window starts now. A nil clock
// uses time.Now.
func NewMonitor(clock Clock) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	return &Monitor{
		clock:       clock,
		windowStart: clock(),
	}
}

// RecordFrame counts one frame and returns the current rate estimate.
//
// When at least one second has elapsed since the window started, the count
// (including this frame) becomes the new rate, and the count and window
// restart.
func (m *Monitor) RecordFrame() float64 {
	m.count++

	now := m.clock()
	if now.Sub(m.windowStart) >= rateWindow {
		m.rate = float64(m.count)
		m.count = 0
		m.windowStart = now
	}

	return m.rate
}

// Rate returns the last finalized rate.
func (m *Monitor) Rate() float64 {
	return m.rate
}

// Reset clears the counter and the rate and starts a new window now.
func (m *Monitor) Reset() {
	m.count = 0
	m.rate = 0
	m.windowStart = m.clock()
}
