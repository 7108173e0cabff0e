package history

import (
	"reflect"
	"testing"
	"time"

	"github.com/roastwire/roastwire/internal/domain"
)

func sample(ts int64) *domain.Sample {
	return &domain.Sample{TimestampMs: ts, BT: float64(ts) / 100}
}

func TestRingEvictsOutsideWindow(t *testing.T) {
	r := NewRing(10 * time.Second)

	for ts := int64(0); ts <= 25_000; ts += 1000 {
		r.Append(sample(ts))
	}

	if got := r.OldestMs(); got != 15_000 {
		t.Fatalf("oldest retained = %d, want 15000", got)
	}
	if got := r.NewestMs(); got != 25_000 {
		t.Fatalf("newest retained = %d, want 25000", got)
	}
	if got := r.Len(); got != 11 {
		t.Fatalf("len = %d, want 11", got)
	}
}

func TestRingDropsOutOfOrderSamples(t *testing.T) {
	r := NewRing(time.Minute)
	r.Append(sample(5000))
	r.Append(sample(3000))

	if r.Len() != 1 || r.NewestMs() != 5000 {
		t.Fatalf("out-of-order sample must be dropped, have len=%d newest=%d", r.Len(), r.NewestMs())
	}
}

func TestReplaySinceOrderAndIdempotence(t *testing.T) {
	r := NewRing(time.Minute)
	for ts := int64(1000); ts <= 5000; ts += 1000 {
		r.Append(sample(ts))
	}

	first := r.ReplaySince(2000)
	second := r.ReplaySince(2000)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical cutoffs against an unchanged buffer must replay identically")
	}

	want := []int64{3000, 4000, 5000}
	if len(first) != len(want) {
		t.Fatalf("replay len = %d, want %d", len(first), len(want))
	}
	for i, s := range first {
		if s.TimestampMs != want[i] {
			t.Fatalf("replay[%d] = %d, want %d", i, s.TimestampMs, want[i])
		}
	}
}

func TestReplaySinceCutoffIsExclusive(t *testing.T) {
	r := NewRing(time.Minute)
	r.Append(sample(1000))
	r.Append(sample(2000))

	out := r.ReplaySince(1000)
	if len(out) != 1 || out[0].TimestampMs != 2000 {
		t.Fatalf("cutoff must be exclusive, got %+v", out)
	}
}

func TestReplaySinceBeyondHorizonReturnsWhatRemains(t *testing.T) {
	r := NewRing(10 * time.Second)
	for ts := int64(0); ts <= 30_000; ts += 1000 {
		r.Append(sample(ts))
	}

	// The client's cutoff predates the oldest retained sample: the gap is
	// unrecoverable, the buffer replays only what it still holds, no error.
	out := r.ReplaySince(5000)
	if len(out) == 0 {
		t.Fatalf("expected a partial replay")
	}
	if out[0].TimestampMs != r.OldestMs() {
		t.Fatalf("partial replay must start at the oldest retained sample, got %d", out[0].TimestampMs)
	}
}

func TestReplaySinceFutureCutoffIsEmpty(t *testing.T) {
	r := NewRing(time.Minute)
	r.Append(sample(1000))

	if out := r.ReplaySince(99_999); out != nil {
		t.Fatalf("future cutoff must replay nothing, got %+v", out)
	}
}

func TestReplayResultIsACopy(t *testing.T) {
	r := NewRing(2 * time.Second)
	r.Append(sample(1000))

	out := r.ReplaySince(0)
	for ts := int64(2000); ts <= 10_000; ts += 1000 {
		r.Append(sample(ts))
	}
	if len(out) != 1 || out[0].TimestampMs != 1000 {
		t.Fatalf("replay slice must survive later appends, got %+v", out)
	}
}
