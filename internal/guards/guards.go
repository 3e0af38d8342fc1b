// Package guards defines the capability interfaces the governance
// validator delegates domain checks to. The validator consumes these
// verdicts; it never reaches into platform tables itself.
package guards

import "context"

// PlatformDecision is the platform-state guard's verdict for one action.
type PlatformDecision struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	BlockingState string `json:"blocking_state,omitempty"`
	PlatformState string `json:"platform_state,omitempty"`
}

// PlatformStateGuard decides whether the company's current platform
// state permits an action at all.
type PlatformStateGuard interface {
	CanPerformAction(ctx context.Context, companyID, action, actorID string) (PlatformDecision, error)
}

// Blocker is a single reason an investor cannot invest right now.
type Blocker struct {
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	GuardName string `json:"guard_name"`
}

// Eligibility is the buy-eligibility guard chain's aggregate verdict.
type Eligibility struct {
	Allowed  bool      `json:"allowed"`
	Blockers []Blocker `json:"blockers,omitempty"`
}

// BuyEligibilityGuard runs the investor eligibility guard chain
// (phase, KYC, accreditation, limits) for one company/investor pair.
type BuyEligibilityGuard interface {
	CanInvest(ctx context.Context, companyID, actorID string) (Eligibility, error)
}

// CrossPhaseGuard enforces the cross-phase mutation rules. Both
// assertions communicate refusal by returning an error.
type CrossPhaseGuard interface {
	AssertSnapshotImmutability(ctx context.Context, snapshotID, kind string) error
	AssertCanMutatePlatformContext(ctx context.Context, companyID, source, actorID string) error
}

// Guard names reported in eligibility blockers.
const (
	GuardNamePhase         = "phase_guard"
	GuardNameKYC           = "kyc_guard"
	GuardNameAccreditation = "accreditation_guard"
	GuardNameLimits        = "investment_limit_guard"
)
