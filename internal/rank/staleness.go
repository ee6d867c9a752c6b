package rank

import "time"

// DefaultFreshnessWindow is the baseline minimum time between successive
// scans of the same keyword.
const DefaultFreshnessWindow = 7 * 24 * time.Hour

// StalenessPolicy decides whether a keyword's history warrants a new lookup.
type StalenessPolicy struct {
	window time.Duration
}

// NewStalenessPolicy builds a policy with the given freshness window.
// Non-positive windows fall back to the 7-day default.
func NewStalenessPolicy(window time.Duration) *StalenessPolicy {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return &StalenessPolicy{window: window}
}

// Window returns the configured freshness window.
func (p *StalenessPolicy) Window() time.Duration {
	return p.window
}

// IsDue applies the staleness rules in order, first match wins:
// empty history is due; a nil-position last point that is not the creation
// sentinel means the previous lookup failed to place the domain and is due
// for an eager retry; a last point older than the window is due.
func (p *StalenessPolicy) IsDue(history []HistoryPoint, now time.Time) bool {
	return p.IsDueWithin(history, now, p.window)
}

// IsDueWithin evaluates the same rules against an explicit window. The
// coordinator uses this to honor a project's advisory weekly scan day with a
// tighter window on that day.
func (p *StalenessPolicy) IsDueWithin(history []HistoryPoint, now time.Time, window time.Duration) bool {
	if len(history) == 0 {
		return true
	}
	if window <= 0 {
		window = p.window
	}
	ordered := SortedHistory(history)
	last := ordered[len(ordered)-1]
	if last.Position == nil && len(ordered) > 1 {
		return true
	}
	return last.CheckedAt.Before(now.Add(-window))
}
