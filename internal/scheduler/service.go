// Package scheduler triggers periodic scan runs via cron.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/serpwatch/rankscan/internal/rank"
)

// Runner executes one scan pass across all tenants.
type Runner interface {
	Run(ctx context.Context, tenantID string) rank.RunSummary
}

// Service owns the cron instance that drives scheduled scans.
type Service struct {
	schedule string
	runner   Runner
	cron     *cron.Cron
	logger   *zap.Logger
}

// New creates a scheduler Service. Schedule is "daily" or "weekly";
// anything else falls back to weekly.
func New(schedule string, runner Runner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		schedule: schedule,
		runner:   runner,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
	}
}

// Start registers the scan job and starts the cron loop.
func (s *Service) Start() error {
	var expr string
	switch s.schedule {
	case "daily":
		// Daily at 9 AM UTC.
		expr = "0 0 9 * * *"
	case "weekly":
		// Weekly on Monday at 9 AM UTC.
		expr = "0 0 9 * * MON"
	default:
		expr = "0 0 9 * * MON"
	}

	_, err := s.cron.AddFunc(expr, func() {
		s.logger.Info("starting scheduled scan run")
		summary := s.runner.Run(context.Background(), "")
		if !summary.Success {
			s.logger.Error("scheduled scan run failed",
				zap.String("run_id", summary.RunID),
				zap.String("error", summary.Error),
			)
			return
		}
		s.logger.Info("scheduled scan run finished",
			zap.String("run_id", summary.RunID),
			zap.Int("scanned", summary.Scanned),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
		)
	})
	if err != nil {
		return fmt.Errorf("register scan schedule: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the cron loop. Running jobs finish on their own.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.logger.Info("scheduler stopped")
	}
}
