// Package rank defines core types shared across subsystems.
package rank

import (
	"sort"
	"time"
)

// HistoryPoint is one timestamped rank observation for a keyword.
// A nil Position means the tracked domain was not found within the lookup
// depth; the very first point of a keyword carries nil as a "not yet
// checked" sentinel. Points are immutable once appended.
type HistoryPoint struct {
	CheckedAt time.Time `json:"checked_at"`
	Position  *int      `json:"position"`
}

// Keyword is a tracked search term plus target country, scoped to a project.
type Keyword struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Term      string         `json:"term"`
	Country   string         `json:"country"`
	History   []HistoryPoint `json:"history"`
}

// Project groups keywords under a tracked domain for one tenant.
type Project struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	// ScanDay is an advisory weekly scan-day preference ("Monday".."Sunday",
	// empty when unset). The coordinator treats it as a staleness hint only.
	ScanDay string `json:"scan_day,omitempty"`
}

// ScanTarget is one keyword joined with the project context the scan needs.
type ScanTarget struct {
	TenantID      string
	ProjectID     string
	ProjectDomain string
	ScanDay       string
	Keyword       Keyword
}

// Failure records why one keyword could not be scanned during a run.
type Failure struct {
	KeywordID string `json:"keyword_id"`
	Reason    string `json:"reason"`
}

// RunSummary aggregates the outcome of one scan run. Success=false only for
// run-level failures (bad credentials, repository unreachable); per-keyword
// failures are reported through Failed and Failures with Success=true.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Success    bool      `json:"success"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Considered int       `json:"considered"`
	Scanned    int       `json:"scanned"`
	Appended   int       `json:"appended"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	DataErrors int       `json:"data_errors"`
	Failures   []Failure `json:"failures,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Result is the outcome of one rank lookup. A nil Position means the domain
// did not appear within the checked depth, which is a valid observation and
// never an error.
type Result struct {
	Position *int
	// Raw is the provider response body, retained for optional archiving.
	Raw []byte
}

// Countries lists the supported target countries, matching the dashboard's
// fixed selector.
var Countries = []string{"USA", "UK", "Canada", "Australia", "Germany", "France", "Türkiye"}

// ValidCountry reports whether c is one of the supported target countries.
func ValidCountry(c string) bool {
	for _, known := range Countries {
		if c == known {
			return true
		}
	}
	return false
}

// SortedHistory returns the history ordered by CheckedAt without mutating
// the stored slice. Legacy writers occasionally appended out of order, so
// readers must sort before trusting the last point.
func SortedHistory(history []HistoryPoint) []HistoryPoint {
	out := make([]HistoryPoint, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CheckedAt.Before(out[j].CheckedAt)
	})
	return out
}

// Position returns a pointer to p, for building HistoryPoint literals.
func Position(p int) *int {
	return &p
}
