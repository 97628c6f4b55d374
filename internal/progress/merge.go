// Package progress reconciles watch-progress snapshots into one durable
// record per lead and lesson. The merge is a pointwise maximum, so snapshots
// may arrive late, twice or out of order.
package progress

import "time"

// DefaultCompletionThreshold is the percent at which a lesson counts as watched.
const DefaultCompletionThreshold = 90.0

// Snapshot is one client-reported sample.
type Snapshot struct {
	WatchedSeconds int
	PercentWatched float64
}

// State is the mergeable part of a progress record.
type State struct {
	WatchedSeconds int
	PercentWatched float64
	IsCompleted    bool
	CompletedAt    *time.Time
}

// Merge folds in into existing. It is the reference for the upsert in
// Repository.Apply and must stay in step with it.
func Merge(existing State, in Snapshot, threshold float64, now time.Time) (State, bool) {
	merged := State{
		WatchedSeconds: max(existing.WatchedSeconds, in.WatchedSeconds),
		PercentWatched: min(100, max(existing.PercentWatched, in.PercentWatched)),
	}
	switch {
	case existing.IsCompleted:
		merged.IsCompleted = true
		merged.CompletedAt = existing.CompletedAt
		return merged, false
	case merged.PercentWatched >= threshold:
		merged.IsCompleted = true
		merged.CompletedAt = &now
		return merged, true
	default:
		return merged, false
	}
}
