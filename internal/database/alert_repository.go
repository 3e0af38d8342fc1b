package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// AlertRepository handles governance alert persistence.
type AlertRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *sqlx.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger}
}

// Create persists a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *AlertRecord) error {
	query := `
		INSERT INTO governance_alerts (
			id, severity, title, message, payload, acknowledged, created_at
		) VALUES (
			:id, :severity, :title, :message, :payload, :acknowledged, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	r.logger.Info("governance alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("severity", alert.Severity),
		zap.String("title", alert.Title))
	return nil
}

// Acknowledge marks an alert acknowledged by an operator.
func (r *AlertRepository) Acknowledge(ctx context.Context, alertID, acknowledgedBy string) error {
	query := `
		UPDATE governance_alerts SET
			acknowledged = TRUE,
			acknowledged_by = $2,
			acknowledged_at = NOW()
		WHERE id = $1 AND acknowledged = FALSE`

	result, err := r.db.ExecContext(ctx, query, alertID, acknowledgedBy)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert not found or already acknowledged: %s", alertID)
	}

	r.logger.Info("alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("acknowledged_by", acknowledgedBy))
	return nil
}

// ListOpen returns unacknowledged alerts, newest first.
func (r *AlertRepository) ListOpen(ctx context.Context, limit int) ([]*AlertRecord, error) {
	var alerts []*AlertRecord
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT * FROM governance_alerts
		 WHERE acknowledged = FALSE
		 ORDER BY created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	return alerts, nil
}

// CountOpenBySeverity counts unacknowledged alerts of one severity.
func (r *AlertRepository) CountOpenBySeverity(ctx context.Context, severity string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM governance_alerts
		 WHERE acknowledged = FALSE AND severity = $1`, severity)
	if err != nil {
		return 0, fmt.Errorf("failed to count open alerts: %w", err)
	}
	return count, nil
}
