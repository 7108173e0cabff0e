package ports

import "github.com/roastwire/roastwire/internal/domain"

// HistoryStore is the bounded short-horizon buffer backing gap recovery.
// Retention is a rolling wall-clock window relative to the newest sample;
// memory stays bounded no matter how long a session runs.
type HistoryStore interface {
	Append(s *domain.Sample)

	// ReplaySince returns, in timestamp order, every retained sample with
	// TimestampMs strictly greater than lastTimestampMs. A cutoff newer
	// than everything buffered yields an empty result, never an error, and
	// identical cutoffs against an unchanged buffer yield identical
	// results.
	ReplaySince(lastTimestampMs int64) []*domain.Sample

	// OldestMs and NewestMs report the retained span; both are 0 when
	// empty.
	OldestMs() int64
	NewestMs() int64
	Len() int
}
