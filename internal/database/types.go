package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB implements driver.Valuer and sql.Scanner for jsonb columns.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
}

// ViolationLogEntry is one persisted row of the governance audit trail.
// Rows are append-only: the audit trail cannot be amended.
type ViolationLogEntry struct {
	ID              string         `db:"id" json:"id"`
	ProtocolVersion string         `db:"protocol_version" json:"protocol_version"`
	RuleID          string         `db:"rule_id" json:"rule_id"`
	RuleName        string         `db:"rule_name" json:"rule_name"`
	Severity        string         `db:"severity" json:"severity"`
	Message         string         `db:"message" json:"message"`
	ActorType       string         `db:"actor_type" json:"actor_type"`
	ActorID         sql.NullString `db:"actor_id" json:"actor_id,omitempty"`
	Action          string         `db:"action" json:"action"`
	CompanyID       sql.NullString `db:"company_id" json:"company_id,omitempty"`
	TargetModel     sql.NullString `db:"target_model" json:"target_model,omitempty"`
	TargetID        sql.NullString `db:"target_id" json:"target_id,omitempty"`
	Details         JSONB          `db:"details" json:"details,omitempty"`
	RequestIP       sql.NullString `db:"request_ip" json:"request_ip,omitempty"`
	RequestAgent    sql.NullString `db:"request_agent" json:"request_agent,omitempty"`
	RequestURL      sql.NullString `db:"request_url" json:"request_url,omitempty"`
	RequestMethod   sql.NullString `db:"request_method" json:"request_method,omitempty"`
	WasBlocked      bool           `db:"was_blocked" json:"was_blocked"`
	EnforcementMode string         `db:"enforcement_mode" json:"enforcement_mode"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// AlertRecord is a persisted governance alert. Only the acknowledged
// flag mutates after creation, via an operator action.
type AlertRecord struct {
	ID             string         `db:"id" json:"id"`
	Severity       string         `db:"severity" json:"severity"`
	Title          string         `db:"title" json:"title"`
	Message        string         `db:"message" json:"message"`
	Payload        JSONB          `db:"payload" json:"payload,omitempty"`
	Acknowledged   bool           `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy sql.NullString `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt sql.NullTime   `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// RuleCount is one row of the top-violated-rules report.
type RuleCount struct {
	RuleID   string `db:"rule_id" json:"rule_id"`
	RuleName string `db:"rule_name" json:"rule_name"`
	Count    int    `db:"count" json:"count"`
}

// ActorCount is one row of the violations-by-actor-type report.
type ActorCount struct {
	ActorType string `db:"actor_type" json:"actor_type"`
	Count     int    `db:"count" json:"count"`
}

// ViolationFilter narrows violation-log listings.
type ViolationFilter struct {
	Severity  string
	RuleID    string
	ActorType string
	CompanyID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}
