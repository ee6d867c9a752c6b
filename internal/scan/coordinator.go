// Package scan implements the keyword scan run: the walk over every tenant,
// project, and keyword that refreshes stale rank history.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/serpwatch/rankscan/internal/metrics"
	"github.com/serpwatch/rankscan/internal/rank"
)

// Config controls Coordinator behavior.
type Config struct {
	// Concurrency caps in-flight lookups. Unbounded fan-out across thousands
	// of keywords would trip provider rate limits, so the cap is mandatory.
	Concurrency int
	// Window is the baseline freshness window between scans of one keyword.
	Window time.Duration
	// ScanDayWindow is the tighter window applied on a project's preferred
	// weekly scan day.
	ScanDayWindow time.Duration
	// Topic receives run-summary events when a publisher is configured.
	Topic string
	// ArchivePrefix namespaces archived raw provider responses.
	ArchivePrefix string
}

// Coordinator orchestrates one scan run over the keyword universe. Failures
// of individual keywords never abort the run; only missing provider
// credentials or an unreachable repository do.
type Coordinator struct {
	repo      rank.KeywordRepository
	lookup    rank.Lookup
	policy    *rank.StalenessPolicy
	retry     *rank.RetryPolicy
	clock     rank.Clock
	idGen     rank.IDGenerator
	publisher rank.Publisher
	archive   rank.Archive
	notifier  rank.Notifier
	cfg       Config
	logger    *zap.Logger
}

// Option customizes optional collaborators.
type Option func(*Coordinator)

// WithPublisher attaches a run-summary event publisher.
func WithPublisher(p rank.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

// WithArchive attaches a raw provider-response archive.
func WithArchive(a rank.Archive) Option {
	return func(c *Coordinator) { c.archive = a }
}

// WithNotifier attaches an operator notifier for run-level failures.
func WithNotifier(n rank.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// New constructs a Coordinator.
func New(
	repo rank.KeywordRepository,
	lookup rank.Lookup,
	retry *rank.RetryPolicy,
	clock rank.Clock,
	idGen rank.IDGenerator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.ScanDayWindow <= 0 {
		cfg.ScanDayWindow = 24 * time.Hour
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "responses"
	}
	c := &Coordinator{
		repo:   repo,
		lookup: lookup,
		policy: rank.NewStalenessPolicy(cfg.Window),
		retry:  retry,
		clock:  clock,
		idGen:  idGen,
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// runState carries the mutable aggregate shared by workers.
type runState struct {
	mu       sync.Mutex
	summary  rank.RunSummary
	fatalErr error
}

func (s *runState) addFailure(keywordID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.Failed++
	s.summary.Failures = append(s.summary.Failures, rank.Failure{KeywordID: keywordID, Reason: reason})
}

func (s *runState) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
}

func (s *runState) fatal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// Run executes one scan. An empty tenantID scans every tenant (the
// scheduled global run); a concrete tenantID scopes the run to one user's
// keywords (the on-demand trigger). Cancelling ctx stops new lookups from
// being issued; lookups already in flight complete and their results are
// recorded, so paid-for provider calls are never discarded.
func (c *Coordinator) Run(ctx context.Context, tenantID string) rank.RunSummary {
	runID, err := c.idGen.NewID()
	if err != nil {
		c.logger.Warn("run id generation failed", zap.Error(err))
	}
	state := &runState{summary: rank.RunSummary{
		RunID:     runID,
		StartedAt: c.clock.Now(),
	}}
	logger := c.logger.With(zap.String("run_id", runID), zap.String("tenant_id", tenantID))

	metrics.IncActiveScans()
	defer metrics.DecActiveScans()

	if err := c.lookup.Ready(); err != nil {
		return c.finish(ctx, state, logger, fmt.Errorf("lookup provider: %w", err))
	}

	targets, err := c.repo.ListScanTargets(ctx, tenantID)
	if err != nil {
		return c.finish(ctx, state, logger, fmt.Errorf("list scan targets: %w", err))
	}
	state.summary.Considered = len(targets)
	logger.Info("scan run started", zap.Int("keywords", len(targets)))

	// In-flight work survives run cancellation so results already paid for
	// at the provider still get recorded.
	workCtx := context.WithoutCancel(ctx)

	sem := semaphore.NewWeighted(int64(c.cfg.Concurrency))
	var wg sync.WaitGroup
	for _, target := range targets {
		if ctx.Err() != nil || state.fatal() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(t rank.ScanTarget) {
			defer wg.Done()
			defer sem.Release(1)
			c.processTarget(workCtx, t, state, logger)
		}(target)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil && state.fatal() == nil {
		state.mu.Lock()
		state.summary.Error = fmt.Sprintf("run interrupted: %v", err)
		state.mu.Unlock()
		logger.Warn("scan run interrupted", zap.Error(err))
	}

	return c.finish(workCtx, state, logger, state.fatal())
}

// processTarget handles exactly one keyword. Nothing it does may propagate
// past this method: every failure is recorded and the run moves on.
func (c *Coordinator) processTarget(ctx context.Context, t rank.ScanTarget, state *runState, logger *zap.Logger) {
	kwLogger := logger.With(
		zap.String("keyword_id", t.Keyword.ID),
		zap.String("term", t.Keyword.Term),
		zap.String("project_id", t.ProjectID),
	)

	if reason := dataError(t); reason != "" {
		state.mu.Lock()
		state.summary.DataErrors++
		state.mu.Unlock()
		metrics.ObserveKeyword(metrics.OutcomeDataError)
		kwLogger.Warn("keyword skipped: data integrity issue", zap.String("reason", reason))
		return
	}

	now := c.clock.Now()
	if !c.policy.IsDueWithin(t.Keyword.History, now, c.effectiveWindow(t, now)) {
		state.mu.Lock()
		state.summary.Skipped++
		state.mu.Unlock()
		metrics.ObserveKeyword(metrics.OutcomeSkipped)
		return
	}

	state.mu.Lock()
	state.summary.Scanned++
	state.mu.Unlock()

	result, err := c.lookupWithRetry(ctx, t)
	if err != nil {
		if errors.Is(err, rank.ErrMissingCredentials) {
			state.setFatal(err)
			kwLogger.Error("lookup credentials rejected, aborting run", zap.Error(err))
			return
		}
		state.addFailure(t.Keyword.ID, fmt.Sprintf("lookup: %v", err))
		metrics.ObserveKeyword(metrics.OutcomeLookupFailed)
		kwLogger.Warn("rank lookup failed", zap.Error(err))
		return
	}

	point := rank.HistoryPoint{CheckedAt: c.clock.Now(), Position: result.Position}
	if err := c.repo.AppendHistory(ctx, t.TenantID, t.ProjectID, t.Keyword.ID, point); err != nil {
		state.addFailure(t.Keyword.ID, fmt.Sprintf("append history: %v", err))
		metrics.ObserveKeyword(metrics.OutcomeAppendFailed)
		kwLogger.Warn("history append failed, rank lost for this run", zap.Error(err))
		return
	}

	state.mu.Lock()
	state.summary.Appended++
	state.mu.Unlock()
	metrics.ObserveKeyword(metrics.OutcomeAppended)
	metrics.ObserveHistoryPoint()

	c.archiveResponse(ctx, t, state, result, kwLogger)

	if result.Position != nil {
		kwLogger.Info("rank recorded", zap.Int("position", *result.Position))
	} else {
		kwLogger.Info("domain not ranked within depth")
	}
}

func (c *Coordinator) lookupWithRetry(ctx context.Context, t rank.ScanTarget) (rank.Result, error) {
	var result rank.Result
	var err error
	for attempt := 0; ; attempt++ {
		start := time.Now()
		result, err = c.lookup.Lookup(ctx, t.Keyword.Term, t.ProjectDomain, t.Keyword.Country)
		metrics.ObserveLookupDuration(time.Since(start))
		if err == nil || c.retry == nil || !c.retry.ShouldRetry(err, attempt+1) {
			return result, err
		}
		metrics.ObserveRetry()
		select {
		case <-ctx.Done():
			return rank.Result{}, ctx.Err()
		case <-time.After(c.retry.Backoff(attempt)):
		}
	}
}

func (c *Coordinator) archiveResponse(ctx context.Context, t rank.ScanTarget, state *runState, result rank.Result, logger *zap.Logger) {
	if c.archive == nil || len(result.Raw) == 0 {
		return
	}
	state.mu.Lock()
	runID := state.summary.RunID
	state.mu.Unlock()
	path := fmt.Sprintf("%s/%s/%s.json", strings.Trim(c.cfg.ArchivePrefix, "/"), runID, t.Keyword.ID)
	if _, err := c.archive.PutObject(ctx, path, "application/json", result.Raw); err != nil {
		// Archiving is best effort; the history point is already durable.
		logger.Warn("raw response archive failed", zap.Error(err))
	}
}

func (c *Coordinator) effectiveWindow(t rank.ScanTarget, now time.Time) time.Duration {
	if t.ScanDay != "" && strings.EqualFold(t.ScanDay, now.Weekday().String()) {
		return c.cfg.ScanDayWindow
	}
	return c.policy.Window()
}

func (c *Coordinator) finish(ctx context.Context, state *runState, logger *zap.Logger, fatalErr error) rank.RunSummary {
	state.mu.Lock()
	state.summary.FinishedAt = c.clock.Now()
	state.summary.Success = fatalErr == nil
	if fatalErr != nil {
		state.summary.Error = fatalErr.Error()
	}
	summary := state.summary
	state.mu.Unlock()

	status := "succeeded"
	if !summary.Success {
		status = "failed"
	}
	metrics.ObserveRun(status)

	logger.Info("scan run finished",
		zap.Bool("success", summary.Success),
		zap.Int("considered", summary.Considered),
		zap.Int("scanned", summary.Scanned),
		zap.Int("appended", summary.Appended),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("data_errors", summary.DataErrors),
	)

	if c.publisher != nil && c.cfg.Topic != "" {
		if _, err := c.publisher.Publish(ctx, c.cfg.Topic, summary); err != nil {
			logger.Warn("run summary publish failed", zap.Error(err))
		}
	}
	if !summary.Success && c.notifier != nil {
		if err := c.notifier.NotifyRunFailed(ctx, summary); err != nil {
			logger.Warn("run failure notification failed", zap.Error(err))
		}
	}
	return summary
}

func dataError(t rank.ScanTarget) string {
	switch {
	case strings.TrimSpace(t.Keyword.Term) == "":
		return "keyword term is empty"
	case strings.TrimSpace(t.ProjectDomain) == "":
		return "project domain is empty"
	case !rank.ValidCountry(t.Keyword.Country):
		return fmt.Sprintf("unknown country %q", t.Keyword.Country)
	default:
		return ""
	}
}
