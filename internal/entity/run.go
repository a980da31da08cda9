package entity

import "time"

// RunWindow selects a contiguous slice of the enumerated items.
// A zero Limit means "everything from Offset on".
type RunWindow struct {
	Offset int
	Limit  int
}

// Bounds clamps the window against n items and returns the half-open
// [lo, hi) range to process. An offset past the end yields an empty range.
func (w RunWindow) Bounds(n int) (int, int) {
	lo := w.Offset
	if lo < 0 {
		lo = 0
	}
	if lo > n {
		lo = n
	}
	hi := n
	if w.Limit > 0 && lo+w.Limit < n {
		hi = lo + w.Limit
	}
	return lo, hi
}

// RunSummary aggregates the outcome of one batch run.
type RunSummary struct {
	Total     int
	Skipped   int
	Completed int
	Failed    int
	Elapsed   time.Duration
}
