package guards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SQL-backed reference implementations of the guard interfaces. They stay
// deliberately thin: one lookup against already-maintained platform
// tables, one verdict out.

// Platform states that block non-administrative activity.
var blockingStates = map[string]bool{
	"suspended":          true,
	"enforcement_hold":   true,
	"delisted":           true,
	"pending_compliance": true,
}

// SQLPlatformStateGuard resolves a company's platform state from the
// companies table.
type SQLPlatformStateGuard struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSQLPlatformStateGuard(db *sqlx.DB, logger *zap.Logger) *SQLPlatformStateGuard {
	return &SQLPlatformStateGuard{db: db, logger: logger}
}

func (g *SQLPlatformStateGuard) CanPerformAction(ctx context.Context, companyID, action, actorID string) (PlatformDecision, error) {
	var state string
	err := g.db.GetContext(ctx, &state,
		`SELECT platform_state FROM companies WHERE id = $1`, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return PlatformDecision{}, fmt.Errorf("company not found: %s", companyID)
	}
	if err != nil {
		return PlatformDecision{}, fmt.Errorf("failed to resolve platform state: %w", err)
	}

	if blockingStates[state] && action != "read" {
		return PlatformDecision{
			Allowed:       false,
			Reason:        fmt.Sprintf("platform state %q forbids action %q", state, action),
			BlockingState: state,
			PlatformState: state,
		}, nil
	}

	return PlatformDecision{Allowed: true, PlatformState: state}, nil
}

// SQLBuyEligibilityGuard runs the investor eligibility chain against the
// investor and company tables.
type SQLBuyEligibilityGuard struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSQLBuyEligibilityGuard(db *sqlx.DB, logger *zap.Logger) *SQLBuyEligibilityGuard {
	return &SQLBuyEligibilityGuard{db: db, logger: logger}
}

type investorRow struct {
	KYCStatus        string  `db:"kyc_status"`
	Accredited       bool    `db:"accredited"`
	InvestedThisYear float64 `db:"invested_this_year"`
	AnnualLimit      float64 `db:"annual_limit"`
}

func (g *SQLBuyEligibilityGuard) CanInvest(ctx context.Context, companyID, actorID string) (Eligibility, error) {
	var phase string
	err := g.db.GetContext(ctx, &phase,
		`SELECT raise_phase FROM companies WHERE id = $1`, companyID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to resolve raise phase: %w", err)
	}

	var inv investorRow
	err = g.db.GetContext(ctx, &inv,
		`SELECT kyc_status, accredited, invested_this_year, annual_limit
		 FROM investors WHERE id = $1`, actorID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("failed to resolve investor: %w", err)
	}

	var blockers []Blocker
	if phase != "open" {
		blockers = append(blockers, Blocker{
			Severity:  "critical",
			Message:   fmt.Sprintf("raise phase is %q, investments require an open phase", phase),
			GuardName: GuardNamePhase,
		})
	}
	if inv.KYCStatus != "approved" {
		blockers = append(blockers, Blocker{
			Severity:  "critical",
			Message:   fmt.Sprintf("kyc not approved (status %q)", inv.KYCStatus),
			GuardName: GuardNameKYC,
		})
	}
	if !inv.Accredited {
		blockers = append(blockers, Blocker{
			Severity:  "medium",
			Message:   "investor is not accredited, per-offering caps apply",
			GuardName: GuardNameAccreditation,
		})
	}
	if inv.AnnualLimit > 0 && inv.InvestedThisYear >= inv.AnnualLimit {
		blockers = append(blockers, Blocker{
			Severity:  "critical",
			Message:   "annual investment limit reached",
			GuardName: GuardNameLimits,
		})
	}

	return Eligibility{Allowed: len(blockers) == 0, Blockers: blockers}, nil
}

// SQLCrossPhaseGuard checks snapshot freeze flags and context mutation
// permissions.
type SQLCrossPhaseGuard struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSQLCrossPhaseGuard(db *sqlx.DB, logger *zap.Logger) *SQLCrossPhaseGuard {
	return &SQLCrossPhaseGuard{db: db, logger: logger}
}

// Context mutation sources the platform accepts.
var allowedMutationSources = map[string]bool{
	"phase_transition":   true,
	"admin_override":     true,
	"system_enforcement": true,
}

func (g *SQLCrossPhaseGuard) AssertSnapshotImmutability(ctx context.Context, snapshotID, kind string) error {
	var table, column string
	switch kind {
	case "investment_snapshot":
		table, column = "investment_snapshots", "is_immutable"
	case "context_snapshot":
		table, column = "context_snapshots", "is_locked"
	default:
		return fmt.Errorf("unknown snapshot kind: %s", kind)
	}

	var frozen bool
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, column, table)
	if err := g.db.GetContext(ctx, &frozen, query, snapshotID); err != nil {
		return fmt.Errorf("failed to resolve snapshot %s: %w", snapshotID, err)
	}
	if frozen {
		return fmt.Errorf("snapshot %s (%s) belongs to a closed phase and is frozen", snapshotID, kind)
	}
	return nil
}

func (g *SQLCrossPhaseGuard) AssertCanMutatePlatformContext(ctx context.Context, companyID, source, actorID string) error {
	if !allowedMutationSources[source] {
		return fmt.Errorf("platform context mutation from source %q is not permitted", source)
	}

	var locked bool
	err := g.db.GetContext(ctx, &locked,
		`SELECT context_locked FROM companies WHERE id = $1`, companyID)
	if err != nil {
		return fmt.Errorf("failed to resolve context lock: %w", err)
	}
	if locked {
		return fmt.Errorf("platform context for company %s is locked", companyID)
	}
	return nil
}
