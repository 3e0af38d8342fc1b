package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ViolationRepository handles the append-only governance violation log.
// There is intentionally no update or delete: the audit trail cannot be
// amended.
type ViolationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewViolationRepository creates a new violation repository.
func NewViolationRepository(db *sqlx.DB, logger *zap.Logger) *ViolationRepository {
	return &ViolationRepository{db: db, logger: logger}
}

// Insert appends violation log entries. Entries of one batch are written
// in order inside a single transaction.
func (r *ViolationRepository) Insert(ctx context.Context, entries []ViolationLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO governance_violations (
			id, protocol_version, rule_id, rule_name, severity, message,
			actor_type, actor_id, action, company_id, target_model, target_id,
			details, request_ip, request_agent, request_url, request_method,
			was_blocked, enforcement_mode, created_at
		) VALUES (
			:id, :protocol_version, :rule_id, :rule_name, :severity, :message,
			:actor_type, :actor_id, :action, :company_id, :target_model, :target_id,
			:details, :request_ip, :request_agent, :request_url, :request_method,
			:was_blocked, :enforcement_mode, :created_at
		)`

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin violation insert: %w", err)
	}
	defer tx.Rollback()

	for i := range entries {
		if _, err := tx.NamedExecContext(ctx, query, entries[i]); err != nil {
			return fmt.Errorf("failed to insert violation %s: %w", entries[i].ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit violation batch: %w", err)
	}

	r.logger.Debug("violations persisted", zap.Int("count", len(entries)))
	return nil
}

// CountByActorSince counts log entries for one actor type inside a
// trailing window. Used for anomaly detection; being a count query over
// persisted rows, it survives process restarts.
func (r *ViolationRepository) CountByActorSince(ctx context.Context, actorType string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM governance_violations
		 WHERE actor_type = $1 AND created_at >= $2`, actorType, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count violations by actor: %w", err)
	}
	return count, nil
}

// List retrieves violation log entries with filtering and pagination,
// newest first.
func (r *ViolationRepository) List(ctx context.Context, filter ViolationFilter) ([]*ViolationLogEntry, int, error) {
	where, args := buildViolationWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM governance_violations " + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count violations: %w", err)
	}

	query := "SELECT * FROM governance_violations " + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var entries []*ViolationLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list violations: %w", err)
	}
	return entries, total, nil
}

// TopRules returns the most violated rules for one day, count descending
// with rule id ascending as the deterministic tiebreak.
func (r *ViolationRepository) TopRules(ctx context.Context, day time.Time, limit int) ([]RuleCount, error) {
	start, end := dayBounds(day)
	var rows []RuleCount
	err := r.db.SelectContext(ctx, &rows,
		`SELECT rule_id, rule_name, COUNT(*) AS count
		 FROM governance_violations
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY rule_id, rule_name
		 ORDER BY count DESC, rule_id ASC
		 LIMIT $3`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to compute top violated rules: %w", err)
	}
	return rows, nil
}

// ActorCounts returns violation counts grouped by actor type for one day.
func (r *ViolationRepository) ActorCounts(ctx context.Context, day time.Time) ([]ActorCount, error) {
	start, end := dayBounds(day)
	var rows []ActorCount
	err := r.db.SelectContext(ctx, &rows,
		`SELECT actor_type, COUNT(*) AS count
		 FROM governance_violations
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY actor_type
		 ORDER BY count DESC, actor_type ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute actor violation counts: %w", err)
	}
	return rows, nil
}

func buildViolationWhere(filter ViolationFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Severity != "" {
		add("severity = $%d", filter.Severity)
	}
	if filter.RuleID != "" {
		add("rule_id = $%d", filter.RuleID)
	}
	if filter.ActorType != "" {
		add("actor_type = $%d", filter.ActorType)
	}
	if filter.CompanyID != "" {
		add("company_id = $%d", filter.CompanyID)
	}
	if filter.Since != nil {
		add("created_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("created_at <= $%d", *filter.Until)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}
