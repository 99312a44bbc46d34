package entry

import "time"

// Restart-rate accounting. Pure functions over the adjustment log so the
// budget arithmetic is testable independently of any Supervisor; the
// Supervisor is the only mutator of the stored log.

// PruneLog returns the adjustment timestamps still inside the sliding window,
// preserving order. Timestamps older than maxTime relative to now are dropped.
func PruneLog(log []time.Time, now time.Time, maxTime time.Duration) []time.Time {
	out := make([]time.Time, 0, len(log))
	for _, t := range log {
		if now.Sub(t) <= maxTime {
			out = append(out, t)
		}
	}
	return out
}

// BudgetExceeded reports whether a pruned adjustment log has outgrown the
// tolerated number of restarts.
func BudgetExceeded(log []time.Time, maxRestarts int) bool {
	return len(log) > maxRestarts
}
