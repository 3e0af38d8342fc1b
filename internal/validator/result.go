package validator

import (
	"time"

	"github.com/openraise/governance-engine/internal/catalog"
)

// Mode is the global enforcement policy controlling which violation
// severities actually block an action.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeLenient Mode = "lenient"
	ModeMonitor Mode = "monitor"
)

// ParseMode maps a configuration string onto a Mode, defaulting to
// strict for anything unrecognized.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeLenient:
		return ModeLenient
	case ModeMonitor:
		return ModeMonitor
	default:
		return ModeStrict
	}
}

// Violation is a single detected breach of one rule during one
// validation pass.
type Violation struct {
	RuleID   string                 `json:"rule_id"`
	RuleName string                 `json:"rule_name"`
	Severity catalog.Severity       `json:"severity"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Result is the aggregate outcome of one validation pass.
type Result struct {
	ProtocolVersion string           `json:"protocol_version"`
	Passed          bool             `json:"passed"`
	ShouldBlock     bool             `json:"should_block"`
	BlockReason     string           `json:"block_reason,omitempty"`
	EnforcementMode Mode             `json:"enforcement_mode"`
	Critical        []Violation      `json:"critical_violations"`
	High            []Violation      `json:"high_violations"`
	Medium          []Violation      `json:"medium_violations"`
	Low             []Violation      `json:"low_violations"`
	DurationMs      int64            `json:"validation_duration_ms"`
	Timestamp       time.Time        `json:"timestamp"`

	// FailedOpen marks a pass that was allowed because of an unexpected
	// internal error under the production fail-open policy, not because
	// the context was clean.
	FailedOpen bool `json:"failed_open,omitempty"`
}

// Violations returns all violations across the four severity buckets,
// critical first.
func (r *Result) Violations() []Violation {
	out := make([]Violation, 0, len(r.Critical)+len(r.High)+len(r.Medium)+len(r.Low))
	out = append(out, r.Critical...)
	out = append(out, r.High...)
	out = append(out, r.Medium...)
	out = append(out, r.Low...)
	return out
}

// ViolationCount returns the total number of violations in the result.
func (r *Result) ViolationCount() int {
	return len(r.Critical) + len(r.High) + len(r.Medium) + len(r.Low)
}

// decide applies the enforcement policy table. It is a pure function of
// the severity buckets and the mode; it never touches external state.
func decide(mode Mode, critical, high int) (bool, string) {
	switch mode {
	case ModeMonitor:
		return false, ""
	case ModeLenient:
		if critical > 0 {
			return true, "CRITICAL governance violations detected"
		}
		return false, ""
	default: // strict
		if critical > 0 {
			return true, "CRITICAL governance violations detected"
		}
		if high > 0 {
			return true, "HIGH severity governance violations detected"
		}
		return false, ""
	}
}
