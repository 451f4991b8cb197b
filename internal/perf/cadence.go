package perf

import (
	"math"
	"sync"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum allowed FPS standard deviation as a fraction of mean FPS.
	// Example: 30 FPS mean → stable if stddev < 4.5 FPS
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum allowed mean jitter as a fraction of expected interval.
	// Example: 30 FPS (33ms interval) → stable if jitter < 6.6ms
	jitterStabilityThreshold = 0.20

	// DefaultCadenceHistory is the number of frame timestamps a tracker keeps.
	DefaultCadenceHistory = 120
)

// CadenceStats describes the timing regularity of published frames.
type CadenceStats struct {
	Frames       int           `json:"frames" msgpack:"frames"`
	Span         time.Duration `json:"span" msgpack:"span"`
	FPSMean      float64       `json:"fps_mean" msgpack:"fps_mean"`
	FPSStdDev    float64       `json:"fps_stddev" msgpack:"fps_stddev"`
	FPSMin       float64       `json:"fps_min" msgpack:"fps_min"`
	FPSMax       float64       `json:"fps_max" msgpack:"fps_max"`
	JitterMean   float64       `json:"jitter_mean_s" msgpack:"jitter_mean_s"`
	JitterStdDev float64       `json:"jitter_stddev_s" msgpack:"jitter_stddev_s"`
	JitterMax    float64       `json:"jitter_max_s" msgpack:"jitter_max_s"`
	IsStable     bool          `json:"is_stable" msgpack:"is_stable"`
}

// CalculateCadenceStats derives frame-rate and jitter statistics from
// ordered frame timestamps.
//
// This function:
//  1. Calculates mean FPS over the span between first and last frame
//  2. Calculates instantaneous FPS for each frame interval
//  3. Finds min/max instantaneous FPS
//  4. Calculates standard deviation of instantaneous FPS
//  5. Calculates jitter (deviation from the expected interval)
//  6. Determines stability (stddev < 15% of mean AND jitter < 20% of interval)
//
// Fewer than three timestamps are never considered stable.
func CalculateCadenceStats(frameTimes []time.Time) *CadenceStats {
	n := len(frameTimes)
	if n < 2 {
		return &CadenceStats{Frames: n}
	}

	span := frameTimes[n-1].Sub(frameTimes[0])
	stats := &CadenceStats{Frames: n, Span: span}
	if span <= 0 {
		return stats
	}

	fpsMean := float64(n-1) / span.Seconds()
	stats.FPSMean = fpsMean

	instantaneous := make([]float64, 0, n-1)
	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		interval := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		intervals = append(intervals, interval)
		if interval > 0 {
			instantaneous = append(instantaneous, 1.0/interval)
		}
	}
	if len(instantaneous) == 0 {
		return stats
	}

	stats.FPSMin, stats.FPSMax = instantaneous[0], instantaneous[0]
	var sumSquares float64
	for _, fps := range instantaneous {
		stats.FPSMin = math.Min(stats.FPSMin, fps)
		stats.FPSMax = math.Max(stats.FPSMax, fps)
		diff := fps - fpsMean
		sumSquares += diff * diff
	}
	stats.FPSStdDev = math.Sqrt(sumSquares / float64(len(instantaneous)))

	expectedInterval := 1.0 / fpsMean
	var jitterSum float64
	jitters := make([]float64, len(intervals))
	for i, interval := range intervals {
		j := math.Abs(interval - expectedInterval)
		jitters[i] = j
		jitterSum += j
		stats.JitterMax = math.Max(stats.JitterMax, j)
	}
	stats.JitterMean = jitterSum / float64(len(jitters))

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - stats.JitterMean
		jitterSumSquares += diff * diff
	}
	stats.JitterStdDev = math.Sqrt(jitterSumSquares / float64(len(jitters)))

	fpsStable := stats.FPSStdDev < fpsMean*fpsStabilityThreshold
	jitterStable := stats.JitterMean < expectedInterval*jitterStabilityThreshold
	stats.IsStable = n >= 3 && fpsStable && jitterStable

	return stats
}

// CadenceTracker records the timestamps of the most recent frames in a ring.
// Safe for concurrent use: the loop records, health handlers read.
type CadenceTracker struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewCadenceTracker keeps the last size timestamps (DefaultCadenceHistory if size <= 0).
func NewCadenceTracker(size int) *CadenceTracker {
	if size <= 0 {
		size = DefaultCadenceHistory
	}
	return &CadenceTracker{times: make([]time.Time, size)}
}

// Record stores a frame timestamp, overwriting the oldest when full.
func (c *CadenceTracker) Record(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.times[c.next] = t
	c.next = (c.next + 1) % len(c.times)
	if c.next == 0 {
		c.full = true
	}
}

// Reset forgets all recorded timestamps.
func (c *CadenceTracker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.times)
	c.next = 0
	c.full = false
}

// Stats computes cadence statistics over the recorded history.
func (c *CadenceTracker) Stats() *CadenceStats {
	c.mu.Lock()
	ordered := make([]time.Time, 0, len(c.times))
	if c.full {
		ordered = append(ordered, c.times[c.next:]...)
	}
	ordered = append(ordered, c.times[:c.next]...)
	c.mu.Unlock()

	return CalculateCadenceStats(ordered)
}
