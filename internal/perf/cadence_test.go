package perf

import (
	"math/rand"
	"testing"
	"time"
)

// generateFrameTimes builds n timestamps at fps with uniform jitter expressed
// as a fraction of the interval.
func generateFrameTimes(n int, fps, jitter float64, seed int64) []time.Time {
	rng := rand.New(rand.NewSource(seed))
	interval := time.Duration(float64(time.Second) / fps)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	times := make([]time.Time, n)
	for i := range times {
		offset := time.Duration((rng.Float64()*2 - 1) * jitter * float64(interval))
		times[i] = start.Add(time.Duration(i)*interval + offset)
	}
	return times
}

func TestCadenceStability(t *testing.T) {
	t.Run("steady 30fps", func(t *testing.T) {
		stats := CalculateCadenceStats(generateFrameTimes(60, 30, 0.02, 1))
		if !stats.IsStable {
			t.Errorf("expected stable cadence, got %+v", stats)
		}
		if stats.FPSMean < 29 || stats.FPSMean > 31 {
			t.Errorf("FPSMean = %.2f, want ≈30", stats.FPSMean)
		}
	})

	t.Run("erratic cadence", func(t *testing.T) {
		stats := CalculateCadenceStats(generateFrameTimes(60, 30, 0.45, 2))
		if stats.IsStable {
			t.Errorf("expected unstable cadence, got %+v", stats)
		}
	})
}

func TestCadenceEdgeCases(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		times []time.Time
	}{
		{"no frames", nil},
		{"one frame", []time.Time{now}},
		{"two frames", []time.Time{now, now.Add(33 * time.Millisecond)}},
		{"identical timestamps", []time.Time{now, now, now}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := CalculateCadenceStats(tt.times)
			if stats.IsStable {
				t.Errorf("%s: IsStable = true, want false", tt.name)
			}
			if stats.Frames != len(tt.times) {
				t.Errorf("Frames = %d, want %d", stats.Frames, len(tt.times))
			}
		})
	}
}

func TestCadenceMonotonicJitter(t *testing.T) {
	previousStable := true
	for i, jitter := range []float64{0.01, 0.05, 0.10, 0.30, 0.45} {
		stats := CalculateCadenceStats(generateFrameTimes(120, 25, jitter, 7))
		t.Logf("jitter %.0f%% → IsStable=%v (stddev %.2f, jitter %.4fs)",
			jitter*100, stats.IsStable, stats.FPSStdDev, stats.JitterMean)
		if i > 0 && !previousStable && stats.IsStable {
			t.Errorf("stability flipped back to true at jitter %.0f%%", jitter*100)
		}
		previousStable = stats.IsStable
	}
}

func TestCadenceTrackerRing(t *testing.T) {
	tracker := NewCadenceTracker(4)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		tracker.Record(start.Add(time.Duration(i) * 100 * time.Millisecond))
	}

	stats := tracker.Stats()
	if stats.Frames != 4 {
		t.Fatalf("Frames = %d, want 4", stats.Frames)
	}
	if stats.Span != 300*time.Millisecond {
		t.Errorf("Span = %v, want 300ms (oldest entries overwritten in order)", stats.Span)
	}
	if !stats.IsStable || stats.FPSMean < 9.99 || stats.FPSMean > 10.01 {
		t.Errorf("expected stable 10fps, got %+v", stats)
	}

	tracker.Reset()
	if got := tracker.Stats().Frames; got != 0 {
		t.Errorf("Frames after Reset = %d, want 0", got)
	}
}
