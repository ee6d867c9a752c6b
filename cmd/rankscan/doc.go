// Package main hosts the rank scan service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and a synchronous
//     scan trigger (POST /v1/scans). An empty tenant_id scans every tenant;
//     the response carries the full run summary.
//   - Scan coordinator: internal/scan.Coordinator lists scan targets, applies
//     the staleness policy, and fans keyword lookups out to a bounded pool
//     sized by config.Scan.Concurrency. Per-keyword failures never abort a
//     run; only missing provider credentials or an unreachable repository do.
//   - Rank lookup: internal/serp.Client pages through the search provider's
//     JSON API (10 results per page, up to the configured depth) and maps the
//     first result whose link contains the project domain to a 1-based rank.
//     A keyword not found within the depth is a valid nil-rank observation,
//     not an error.
//   - Persistence: rank history is append-only. Postgres (pgx) stores one row
//     per observation so concurrent runs never clobber each other; an
//     in-memory store backs development and tests. Raw provider responses can
//     be archived to GCS, a local directory, or memory for rank disputes.
//   - Fanout: a run summary is published to Pub/Sub when a topic is
//     configured, and a failed run triggers an SMTP alert when recipients are
//     configured.
//   - Configuration & plumbing: Viper populates config from env/files
//     (RANKSCAN_ prefix); zap provides structured logging; Prometheus metrics
//     are exported via /metrics; robfig/cron drives the weekly or daily
//     scheduled scan.
//
// Operational notes:
//   - Shutdown: SIGTERM stops the scheduler and drains the HTTP server.
//     In-flight lookups for an interrupted run are recorded before the run
//     reports itself interrupted.
//   - Run locally: go run ./cmd/rankscan -config config.yaml (or rely solely
//     on RANKSCAN_* env overrides). Without a db.dsn the service runs against
//     the in-memory store.
package main
