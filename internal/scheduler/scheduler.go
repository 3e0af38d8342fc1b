// Package scheduler runs the periodic governance jobs: the daily
// compliance-score snapshot and the open-alert sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openraise/governance-engine/internal/catalog"
	"github.com/openraise/governance-engine/internal/database"
	"github.com/openraise/governance-engine/internal/monitor"
)

// Scheduler manages the periodic governance tasks.
type Scheduler struct {
	cron    *cron.Cron
	monitor *monitor.Monitor
	alerts  *database.AlertRepository
	logger  *zap.Logger
}

// New creates a scheduler and registers the governance jobs.
func New(
	m *monitor.Monitor,
	alerts *database.AlertRepository,
	snapshotSpec string,
	sweepSpec string,
	logger *zap.Logger,
) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		monitor: m,
		alerts:  alerts,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(snapshotSpec, s.complianceSnapshot); err != nil {
		return nil, fmt.Errorf("invalid compliance snapshot schedule %q: %w", snapshotSpec, err)
	}
	if _, err := s.cron.AddFunc(sweepSpec, s.alertSweep); err != nil {
		return nil, fmt.Errorf("invalid alert sweep schedule %q: %w", sweepSpec, err)
	}
	return s, nil
}

// Start begins running the scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("governance scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("governance scheduler stopped")
}

// complianceSnapshot computes the previous day's compliance score. The
// computation also refreshes the prometheus gauge.
func (s *Scheduler) complianceSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day := time.Now().UTC().AddDate(0, 0, -1)
	score, err := s.monitor.GetComplianceScore(ctx, day)
	if err != nil {
		s.logger.Error("compliance snapshot failed",
			zap.String("date", day.Format("2006-01-02")), zap.Error(err))
		return
	}

	s.logger.Info("daily compliance snapshot",
		zap.String("date", score.Date),
		zap.Float64("score", score.Score),
		zap.String("grade", score.Grade),
		zap.Int64("total_actions", score.TotalActions),
		zap.Int64("total_violations", score.TotalViolations))
}

// alertSweep reports the open alert backlog so unacknowledged critical
// alerts do not silently age out.
func (s *Scheduler) alertSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	open, err := s.alerts.CountOpenBySeverity(ctx, string(catalog.SeverityCritical))
	if err != nil {
		s.logger.Error("alert sweep failed", zap.Error(err))
		return
	}
	if open > 0 {
		s.logger.Warn("unacknowledged critical governance alerts",
			zap.Int("open_critical", open))
		return
	}
	s.logger.Debug("alert sweep clean")
}
