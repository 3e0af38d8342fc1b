// Package monitor persists governance violations, raises alerts, keeps
// the daily metrics counters and computes the compliance score. All of
// its recording paths are best-effort: monitoring must never block or
// crash the primary validation path.
package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openraise/governance-engine/internal/catalog"
	"github.com/openraise/governance-engine/internal/database"
	"github.com/openraise/governance-engine/internal/kafka"
	"github.com/openraise/governance-engine/internal/metrics"
	"github.com/openraise/governance-engine/internal/validator"
)

// ViolationLog is the append-only violation store the monitor writes to
// and reports from.
type ViolationLog interface {
	Insert(ctx context.Context, entries []database.ViolationLogEntry) error
	CountByActorSince(ctx context.Context, actorType string, since time.Time) (int, error)
	TopRules(ctx context.Context, day time.Time, limit int) ([]database.RuleCount, error)
	ActorCounts(ctx context.Context, day time.Time) ([]database.ActorCount, error)
}

// AlertSink persists raised alerts.
type AlertSink interface {
	Create(ctx context.Context, alert *database.AlertRecord) error
}

// Counters is the atomic day-bucketed counter store.
type Counters interface {
	IncrTotal(ctx context.Context, day time.Time) error
	IncrSeverity(ctx context.Context, day time.Time, severity string) error
	IncrRule(ctx context.Context, day time.Time, ruleID string) error
	IncrActions(ctx context.Context, day time.Time) error
	GetTotal(ctx context.Context, day time.Time) (int64, error)
	GetSeverity(ctx context.Context, day time.Time, severity string) (int64, error)
	GetActions(ctx context.Context, day time.Time) (int64, error)
}

// EventPublisher fans violation events out to downstream consumers.
type EventPublisher interface {
	Publish(event kafka.ViolationEvent) error
}

// Metrics is the day's aggregate violation report.
type Metrics struct {
	Date            string                `json:"date"`
	TotalViolations int64                 `json:"total_violations"`
	TotalActions    int64                 `json:"total_actions"`
	BySeverity      map[string]int64      `json:"by_severity"`
	TopRules        []database.RuleCount  `json:"top_rules"`
	ByActorType     []database.ActorCount `json:"by_actor_type"`
}

// ComplianceScore is the derived daily compliance metric.
type ComplianceScore struct {
	Date            string  `json:"date"`
	Score           float64 `json:"score"`
	Grade           string  `json:"grade"`
	TotalActions    int64   `json:"total_actions"`
	TotalViolations int64   `json:"total_violations"`
}

// Monitor is stateless per call; all state lives in the stores.
type Monitor struct {
	log       ViolationLog
	alerts    AlertSink
	counters  Counters
	publisher EventPublisher
	collector *metrics.Collector
	logger    *zap.Logger

	anomalyWindow    time.Duration
	anomalyThreshold int
	now              func() time.Time
}

// New creates a monitor. publisher and collector may be nil.
func New(
	log ViolationLog,
	alerts AlertSink,
	counters Counters,
	publisher EventPublisher,
	collector *metrics.Collector,
	anomalyWindow time.Duration,
	anomalyThreshold int,
	logger *zap.Logger,
) *Monitor {
	if anomalyWindow <= 0 {
		anomalyWindow = 5 * time.Minute
	}
	if anomalyThreshold <= 0 {
		anomalyThreshold = 10
	}
	return &Monitor{
		log:              log,
		alerts:           alerts,
		counters:         counters,
		publisher:        publisher,
		collector:        collector,
		logger:           logger,
		anomalyWindow:    anomalyWindow,
		anomalyThreshold: anomalyThreshold,
		now:              utcNow,
	}
}

// utcNow keeps day buckets on UTC dates, matching the reporting
// endpoints and the scheduler.
func utcNow() time.Time {
	return time.Now().UTC()
}

// RecordViolations persists one log entry per violation, publishes
// events, checks alert thresholds and updates the day counters. It never
// returns an error: every persistence failure is logged and swallowed so
// monitoring cannot block the primary action. Recording is at-least-once
// relative to the counters; log and counters are not transactionally
// coupled.
func (m *Monitor) RecordViolations(ctx context.Context, result *validator.Result, vc *validator.Context) {
	violations := result.Violations()
	if len(violations) == 0 {
		return
	}

	entries := m.buildEntries(violations, result, vc)
	if err := m.log.Insert(ctx, entries); err != nil {
		m.logger.Error("failed to persist violation log entries",
			zap.Int("count", len(entries)), zap.Error(err))
	}

	m.publishEvents(entries)
	m.checkAlertThresholds(ctx, result, vc)
	m.updateMetrics(ctx, violations)
}

// IncrementActionCounter records one attempted platform action,
// violating or not. Called by the integration layer once per request.
func (m *Monitor) IncrementActionCounter(ctx context.Context) {
	if err := m.counters.IncrActions(ctx, m.now()); err != nil {
		m.logger.Error("failed to increment action counter", zap.Error(err))
	}
}

func (m *Monitor) buildEntries(violations []validator.Violation, result *validator.Result, vc *validator.Context) []database.ViolationLogEntry {
	now := m.now()
	entries := make([]database.ViolationLogEntry, 0, len(violations))
	for _, v := range violations {
		entries = append(entries, database.ViolationLogEntry{
			ID:              uuid.NewString(),
			ProtocolVersion: result.ProtocolVersion,
			RuleID:          v.RuleID,
			RuleName:        v.RuleName,
			Severity:        string(v.Severity),
			Message:         v.Message,
			ActorType:       string(vc.ActorType),
			ActorID:         nullString(vc.ActorID),
			Action:          vc.Action,
			CompanyID:       nullString(vc.CompanyID),
			TargetModel:     nullString(vc.TargetModel),
			TargetID:        nullString(vc.TargetID),
			Details:         database.JSONB(v.Details),
			RequestIP:       nullString(vc.Request.IP),
			RequestAgent:    nullString(vc.Request.UserAgent),
			RequestURL:      nullString(vc.Request.URL),
			RequestMethod:   nullString(vc.Request.Method),
			WasBlocked:      result.ShouldBlock,
			EnforcementMode: string(result.EnforcementMode),
			CreatedAt:       now,
		})
	}
	return entries
}

func (m *Monitor) publishEvents(entries []database.ViolationLogEntry) {
	if m.publisher == nil {
		return
	}
	for _, e := range entries {
		event := kafka.ViolationEvent{
			EventID:         e.ID,
			ProtocolVersion: e.ProtocolVersion,
			RuleID:          e.RuleID,
			Severity:        e.Severity,
			ActorType:       e.ActorType,
			Action:          e.Action,
			CompanyID:       e.CompanyID.String,
			WasBlocked:      e.WasBlocked,
			EnforcementMode: e.EnforcementMode,
			Details:         e.Details,
			OccurredAt:      e.CreatedAt,
		}
		if err := m.publisher.Publish(event); err != nil {
			m.logger.Error("failed to publish violation event",
				zap.String("rule_id", e.RuleID), zap.Error(err))
		}
	}
}

// checkAlertThresholds raises a critical alert for any critical
// violation in the batch and a high anomaly alert when one actor type
// accumulates more than the threshold of violations inside the trailing
// window. The anomaly count is a query over persisted entries, so it
// tolerates process restarts.
func (m *Monitor) checkAlertThresholds(ctx context.Context, result *validator.Result, vc *validator.Context) {
	if len(result.Critical) > 0 {
		m.raiseAlert(ctx, string(catalog.SeverityCritical),
			"Critical governance violation",
			fmt.Sprintf("%d critical governance violation(s) by %s performing %q",
				len(result.Critical), vc.ActorType, vc.Action),
			database.JSONB{
				"actor_type":       string(vc.ActorType),
				"actor_id":         vc.ActorID,
				"action":           vc.Action,
				"company_id":       vc.CompanyID,
				"rule_ids":         ruleIDs(result.Critical),
				"was_blocked":      result.ShouldBlock,
				"enforcement_mode": string(result.EnforcementMode),
			})
	}

	since := m.now().Add(-m.anomalyWindow)
	count, err := m.log.CountByActorSince(ctx, string(vc.ActorType), since)
	if err != nil {
		m.logger.Error("failed to run anomaly count query", zap.Error(err))
		return
	}
	if count > m.anomalyThreshold {
		m.raiseAlert(ctx, string(catalog.SeverityHigh),
			"Governance violation anomaly",
			fmt.Sprintf("%d violations from actor type %q within %s",
				count, vc.ActorType, m.anomalyWindow),
			database.JSONB{
				"actor_type":      string(vc.ActorType),
				"window":          m.anomalyWindow.String(),
				"violation_count": count,
				"threshold":       m.anomalyThreshold,
			})
	}
}

func (m *Monitor) raiseAlert(ctx context.Context, severity, title, message string, payload database.JSONB) {
	alert := &database.AlertRecord{
		ID:        uuid.NewString(),
		Severity:  severity,
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: m.now(),
	}
	if err := m.alerts.Create(ctx, alert); err != nil {
		m.logger.Error("failed to raise governance alert",
			zap.String("title", title), zap.Error(err))
		return
	}
	if m.collector != nil {
		m.collector.RecordAlert(severity)
	}
}

// updateMetrics bumps the day counters one increment per violation.
func (m *Monitor) updateMetrics(ctx context.Context, violations []validator.Violation) {
	day := m.now()
	for _, v := range violations {
		if err := m.counters.IncrTotal(ctx, day); err != nil {
			m.logger.Error("failed to increment total counter", zap.Error(err))
		}
		if err := m.counters.IncrSeverity(ctx, day, string(v.Severity)); err != nil {
			m.logger.Error("failed to increment severity counter", zap.Error(err))
		}
		if err := m.counters.IncrRule(ctx, day, v.RuleID); err != nil {
			m.logger.Error("failed to increment rule counter", zap.Error(err))
		}
		if m.collector != nil {
			m.collector.RecordViolation(string(v.Severity), v.RuleID)
		}
	}
}

// GetMetrics returns the day's aggregate violation report. Totals come
// from the counters, grouped reports from the persisted log.
func (m *Monitor) GetMetrics(ctx context.Context, day time.Time) (*Metrics, error) {
	total, err := m.counters.GetTotal(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to read total counter: %w", err)
	}
	actions, err := m.counters.GetActions(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to read action counter: %w", err)
	}

	bySeverity := make(map[string]int64, 4)
	for _, sev := range []catalog.Severity{
		catalog.SeverityCritical, catalog.SeverityHigh,
		catalog.SeverityMedium, catalog.SeverityLow,
	} {
		n, err := m.counters.GetSeverity(ctx, day, string(sev))
		if err != nil {
			return nil, fmt.Errorf("failed to read severity counter: %w", err)
		}
		bySeverity[string(sev)] = n
	}

	topRules, err := m.log.TopRules(ctx, day, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to compute top rules: %w", err)
	}
	actorCounts, err := m.log.ActorCounts(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to compute actor counts: %w", err)
	}

	return &Metrics{
		Date:            day.Format("2006-01-02"),
		TotalViolations: total,
		TotalActions:    actions,
		BySeverity:      bySeverity,
		TopRules:        topRules,
		ByActorType:     actorCounts,
	}, nil
}

// GetComplianceScore computes the day's compliance score: 100 when no
// actions were attempted, otherwise 100 minus the violation rate as a
// percentage, floored at 0 and rounded to 2 decimals.
func (m *Monitor) GetComplianceScore(ctx context.Context, day time.Time) (*ComplianceScore, error) {
	actions, err := m.counters.GetActions(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to read action counter: %w", err)
	}
	violations, err := m.counters.GetTotal(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to read total counter: %w", err)
	}

	score := 100.0
	if actions > 0 {
		score = 100 - (float64(violations)/float64(actions))*100
		if score < 0 {
			score = 0
		}
		score = math.Round(score*100) / 100
	}

	cs := &ComplianceScore{
		Date:            day.Format("2006-01-02"),
		Score:           score,
		Grade:           gradeFor(score),
		TotalActions:    actions,
		TotalViolations: violations,
	}
	if m.collector != nil {
		m.collector.SetComplianceScore(score)
	}
	return cs, nil
}

func gradeFor(score float64) string {
	switch {
	case score >= 95:
		return "A+"
	case score >= 90:
		return "A"
	case score >= 85:
		return "B+"
	case score >= 80:
		return "B"
	case score >= 75:
		return "C+"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func ruleIDs(violations []validator.Violation) []string {
	ids := make([]string, 0, len(violations))
	for _, v := range violations {
		ids = append(ids, v.RuleID)
	}
	return ids
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
