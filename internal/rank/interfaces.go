package rank

import (
	"context"
	"time"
)

// KeywordRepository is the persistence boundary for the scan job. The
// implementation must scope every read and write by tenant; cross-tenant
// access is never valid.
type KeywordRepository interface {
	// ListScanTargets returns every keyword with its project context joined
	// in. An empty tenantID means all tenants (scheduled global run).
	ListScanTargets(ctx context.Context, tenantID string) ([]ScanTarget, error)
	// AppendHistory durably appends one point to a keyword's history. The
	// append must be atomic; implementations must never rewrite the full
	// history from a locally cached copy.
	AppendHistory(ctx context.Context, tenantID, projectID, keywordID string, point HistoryPoint) error
}

// Lookup queries the external search provider for the position of domain in
// the organic results for term/country. Implementations never retry and
// never treat "not ranked" as an error.
type Lookup interface {
	// Ready reports whether credentials are usable. A non-nil error aborts
	// the whole run before any keyword is touched.
	Ready() error
	Lookup(ctx context.Context, term, domain, country string) (Result, error)
}

// Publisher pushes run-summary events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Archive stores raw provider responses for audit and returns a URI.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Notifier alerts an operator about run-level failures.
type Notifier interface {
	NotifyRunFailed(ctx context.Context, summary RunSummary) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
