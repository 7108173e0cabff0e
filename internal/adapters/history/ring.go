// Package history implements the per-machine short-horizon telemetry
// buffer used for reconnect gap recovery.
package history

import (
	"sync"
	"time"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
)

// DefaultWindow is the standard retention span. Sixty seconds covers the
// reconnect backoff ceiling twice over; outages longer than this are
// permanently unrecoverable on the live channel.
const DefaultWindow = 60 * time.Second

// Ring is a rolling time-window buffer of telemetry samples in timestamp
// order. Appending evicts everything older than the window relative to
// the newest sample, so memory stays bounded for arbitrarily long
// sessions. Safe for concurrent use.
type Ring struct {
	mu     sync.Mutex
	data   []*domain.Sample
	window int64 // milliseconds
}

// NewRing creates a buffer retaining the given wall-clock window. A zero
// or negative window falls back to DefaultWindow.
func NewRing(window time.Duration) *Ring {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Ring{window: window.Milliseconds()}
}

// Append adds a sample and evicts everything that fell out of the window.
// Samples older than the current newest are dropped rather than inserted
// out of order; the buffer's ordering invariant is worth more than a
// straggler.
func (r *Ring) Append(s *domain.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.data); n > 0 && s.TimestampMs < r.data[n-1].TimestampMs {
		return
	}
	r.data = append(r.data, s)

	cutoff := s.TimestampMs - r.window
	evict := 0
	for evict < len(r.data) && r.data[evict].TimestampMs < cutoff {
		evict++
	}
	if evict > 0 {
		r.data = append(r.data[:0], r.data[evict:]...)
	}
}

// ReplaySince returns retained samples newer than lastTimestampMs, oldest
// first. The result is a copy; callers may hold it across further
// appends.
func (r *Ring) ReplaySince(lastTimestampMs int64) []*domain.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := 0
	for start < len(r.data) && r.data[start].TimestampMs <= lastTimestampMs {
		start++
	}
	if start == len(r.data) {
		return nil
	}
	out := make([]*domain.Sample, len(r.data)-start)
	copy(out, r.data[start:])
	return out
}

// OldestMs returns the oldest retained timestamp, or 0 when empty.
func (r *Ring) OldestMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0].TimestampMs
}

// NewestMs returns the newest retained timestamp, or 0 when empty.
func (r *Ring) NewestMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) == 0 {
		return 0
	}
	return r.data[len(r.data)-1].TimestampMs
}

// Len returns the number of retained samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

var _ ports.HistoryStore = (*Ring)(nil)
