package session

import "time"

// rorTracker computes a temperature's rate of rise in °C/min over a short
// sliding window. The server-side value is the single source of truth;
// clients never derive their own.
type rorTracker struct {
	windowMs int64
	points   []rorPoint
}

type rorPoint struct {
	ts int64
	v  float64
}

func newRoRTracker(window time.Duration) *rorTracker {
	return &rorTracker{windowMs: window.Milliseconds()}
}

// add records a reading and returns the current rate. Fewer than two
// points in the window, or a zero time span, yield 0.
func (t *rorTracker) add(ts int64, v float64) float64 {
	t.points = append(t.points, rorPoint{ts: ts, v: v})

	cutoff := ts - t.windowMs
	evict := 0
	for evict < len(t.points) && t.points[evict].ts < cutoff {
		evict++
	}
	if evict > 0 {
		t.points = append(t.points[:0], t.points[evict:]...)
	}

	if len(t.points) < 2 {
		return 0
	}
	first := t.points[0]
	last := t.points[len(t.points)-1]
	dt := last.ts - first.ts
	if dt <= 0 {
		return 0
	}
	return (last.v - first.v) / float64(dt) * 60_000
}
