// Package validator implements the governance decision engine: it selects
// the rules applicable to a validation context, evaluates each per its
// rule family, aggregates violations by severity and applies the
// enforcement-mode policy to decide block or allow.
package validator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openraise/governance-engine/internal/catalog"
	"github.com/openraise/governance-engine/internal/guards"
)

// Recorder receives the outcome of every validation pass for audit
// logging, alerting and metrics. Recording is best-effort relative to
// enforcement correctness; implementations must never panic the caller.
type Recorder interface {
	RecordViolations(ctx context.Context, result *Result, vc *Context)
}

// Environment values recognized by the fail-open policy.
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)

// Validator evaluates validation contexts against the governance rule
// catalog. A Validator is immutable after construction; changing the
// enforcement mode requires a new instance. Concurrent Validate calls
// are safe: evaluation is a sequential fold with no shared mutable state.
type Validator struct {
	catalog       *catalog.Catalog
	mode          Mode
	environment   string
	platformGuard guards.PlatformStateGuard
	buyGuard      guards.BuyEligibilityGuard
	crossGuard    guards.CrossPhaseGuard
	recorder      Recorder
	logger        *zap.Logger
}

// New creates a validator. The enforcement mode is read once here;
// recorder may be nil when monitoring is disabled.
func New(
	cat *catalog.Catalog,
	mode Mode,
	environment string,
	platformGuard guards.PlatformStateGuard,
	buyGuard guards.BuyEligibilityGuard,
	crossGuard guards.CrossPhaseGuard,
	recorder Recorder,
	logger *zap.Logger,
) *Validator {
	return &Validator{
		catalog:       cat,
		mode:          mode,
		environment:   environment,
		platformGuard: platformGuard,
		buyGuard:      buyGuard,
		crossGuard:    crossGuard,
		recorder:      recorder,
		logger:        logger,
	}
}

// Mode returns the enforcement mode the validator was constructed with.
func (v *Validator) Mode() Mode { return v.mode }

// Validate evaluates the context against every applicable rule and
// applies the enforcement policy. When the decision is "block" it
// returns a *ViolationError carrying the full result. The result is
// forwarded to the recorder regardless of the decision; MEDIUM and LOW
// violations are logged but never block.
//
// An unexpected internal failure during selection or aggregation is not
// a violation: in production the pass fails open (the action is allowed
// and the failure logged), elsewhere it surfaces as a plain error.
func (v *Validator) Validate(ctx context.Context, vc *Context) (*Result, error) {
	start := time.Now()

	violations, evalErr := v.evaluate(ctx, vc)
	if evalErr != nil {
		if v.environment == EnvProduction {
			v.logger.Error("governance validation failed open",
				zap.String("actor_type", string(vc.ActorType)),
				zap.String("action", vc.Action),
				zap.Error(evalErr))
			res := v.newResult(nil, start)
			res.FailedOpen = true
			return res, nil
		}
		return nil, fmt.Errorf("governance validation internal error: %w", evalErr)
	}

	result := v.newResult(violations, start)

	if v.recorder != nil && result.ViolationCount() > 0 {
		// Fire and forget; ordering inside the batch is preserved by the
		// single recorder call, failures are the recorder's to swallow.
		go v.recorder.RecordViolations(context.Background(), result, vc)
	}

	if result.ShouldBlock {
		v.logger.Warn("governance action blocked",
			zap.String("actor_type", string(vc.ActorType)),
			zap.String("action", vc.Action),
			zap.String("reason", result.BlockReason),
			zap.Int("critical", len(result.Critical)),
			zap.Int("high", len(result.High)))
		return nil, &ViolationError{Reason: result.BlockReason, Result: result}
	}

	return result, nil
}

func (v *Validator) newResult(violations []Violation, start time.Time) *Result {
	res := &Result{
		ProtocolVersion: catalog.ProtocolVersion,
		EnforcementMode: v.mode,
		Timestamp:       time.Now(),
	}
	for _, violation := range violations {
		switch violation.Severity {
		case catalog.SeverityCritical:
			res.Critical = append(res.Critical, violation)
		case catalog.SeverityHigh:
			res.High = append(res.High, violation)
		case catalog.SeverityMedium:
			res.Medium = append(res.Medium, violation)
		default:
			res.Low = append(res.Low, violation)
		}
	}
	res.Passed = len(res.Critical) == 0 && len(res.High) == 0
	res.ShouldBlock, res.BlockReason = decide(v.mode, len(res.Critical), len(res.High))
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// evaluate runs every applicable rule. Panics inside rule selection or
// evaluation are recovered and reported as the internal error the
// fail-open policy distinguishes from legitimate violations.
func (v *Validator) evaluate(ctx context.Context, vc *Context) (violations []Violation, err error) {
	defer func() {
		if r := recover(); r != nil {
			violations = nil
			err = fmt.Errorf("panic during rule evaluation: %v", r)
		}
	}()

	for _, rule := range v.catalog.ForActor(vc.ActorType) {
		violations = append(violations, v.evaluateRule(ctx, rule, vc)...)
	}
	return violations, nil
}

func (v *Validator) evaluateRule(ctx context.Context, rule catalog.Rule, vc *Context) []Violation {
	switch rule.Family {
	case catalog.FamilyPlatformSupremacy:
		return v.evaluatePlatformSupremacy(ctx, rule, vc)
	case catalog.FamilyImmutability:
		return v.evaluateImmutability(rule, vc)
	case catalog.FamilyActorSeparation:
		return v.evaluateActorSeparation(rule, vc)
	case catalog.FamilyAttribution:
		return v.evaluateAttribution(rule, vc)
	case catalog.FamilyBuyEligibility:
		return v.evaluateBuyEligibility(ctx, rule, vc)
	case catalog.FamilyCrossPhase:
		return v.evaluateCrossPhase(ctx, rule, vc)
	}
	return nil
}

// evaluatePlatformSupremacy delegates to the platform-state guard. A
// guard failure becomes one violation; raw adapter errors never reach
// the caller.
func (v *Validator) evaluatePlatformSupremacy(ctx context.Context, rule catalog.Rule, vc *Context) []Violation {
	if vc.CompanyID == "" {
		return nil
	}

	decision, err := v.platformGuard.CanPerformAction(ctx, vc.CompanyID, vc.Action, vc.ActorID)
	if err != nil {
		return []Violation{v.adapterViolation(rule, "platform state guard", err)}
	}
	if decision.Allowed {
		return nil
	}

	return []Violation{{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Severity: rule.Severity,
		Message:  fmt.Sprintf("platform state forbids %q: %s", vc.Action, decision.Reason),
		Details: map[string]interface{}{
			"blocking_state":   decision.BlockingState,
			"platform_state":   decision.PlatformState,
			"attempted_action": vc.Action,
		},
	}}
}

// evaluateImmutability fires only when the action is blocked by the rule
// AND the target resource is currently locked per its kind.
func (v *Validator) evaluateImmutability(rule catalog.Rule, vc *Context) []Violation {
	if !contains(rule.BlockedActions, vc.Action) {
		return nil
	}
	if !vc.Resource.IsLocked() {
		return nil
	}

	return []Violation{{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Severity: rule.Severity,
		Message:  fmt.Sprintf("%s is immutable, %q is not permitted", vc.Resource.Kind, vc.Action),
		Details: map[string]interface{}{
			"resource_kind":    vc.Resource.Kind,
			"resource_id":      vc.TargetID,
			"resource_status":  vc.Resource.Status,
			"attempted_action": vc.Action,
		},
	}}
}

// evaluateActorSeparation applies exactly one of whitelist or blacklist
// mode, whichever the rule defines.
func (v *Validator) evaluateActorSeparation(rule catalog.Rule, vc *Context) []Violation {
	if len(rule.AllowedActions) > 0 {
		if contains(rule.AllowedActions, vc.Action) {
			return nil
		}
		return []Violation{{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("action %q is outside the %s boundary", vc.Action, vc.ActorType),
			Details: map[string]interface{}{
				"attempted_action": vc.Action,
				"allowed_actions":  rule.AllowedActions,
			},
		}}
	}

	if contains(rule.BlockedActions, vc.Action) {
		return []Violation{{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("action %q is forbidden for actor type %s", vc.Action, vc.ActorType),
			Details: map[string]interface{}{
				"attempted_action": vc.Action,
				"blocked_actions":  rule.BlockedActions,
			},
		}}
	}
	return nil
}

// evaluateAttribution emits one violation per missing required field and
// one more when the actor type is outside the rule's valid set.
func (v *Validator) evaluateAttribution(rule catalog.Rule, vc *Context) []Violation {
	if !rule.HasAction(vc.Action) {
		return nil
	}

	var violations []Violation
	for _, field := range rule.RequiredFields {
		if _, ok := vc.PayloadString(field); ok {
			continue
		}
		violations = append(violations, Violation{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("required field %q is missing for action %q", field, vc.Action),
			Details: map[string]interface{}{
				"missing_field":    field,
				"attempted_action": vc.Action,
			},
		})
	}

	if len(rule.ValidActorTypes) > 0 && !containsActor(rule.ValidActorTypes, vc.ActorType) {
		violations = append(violations, Violation{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Severity: rule.Severity,
			Message:  fmt.Sprintf("actor type %q may not perform %q", vc.ActorType, vc.Action),
			Details: map[string]interface{}{
				"invalid_actor_type": string(vc.ActorType),
				"valid_actor_types":  rule.ValidActorTypes,
			},
		})
	}

	return violations
}

// evaluateBuyEligibility engages only for investment creation. The phase
// rule reports phase blockers, the guard rule reports every other
// critical blocker, one violation each.
func (v *Validator) evaluateBuyEligibility(ctx context.Context, rule catalog.Rule, vc *Context) []Violation {
	if vc.Action != "create_investment" {
		return nil
	}

	eligibility, err := v.buyGuard.CanInvest(ctx, vc.CompanyID, vc.ActorID)
	if err != nil {
		return []Violation{v.adapterViolation(rule, "buy eligibility guard", err)}
	}
	if eligibility.Allowed {
		return nil
	}

	var violations []Violation
	for _, blocker := range eligibility.Blockers {
		phaseBlocker := blocker.GuardName == guards.GuardNamePhase
		switch rule.ID {
		case catalog.RuleOpenPhaseOnly:
			if !phaseBlocker {
				continue
			}
		case catalog.RuleInvestorGuards:
			if phaseBlocker || blocker.Severity != string(catalog.SeverityCritical) {
				continue
			}
		}
		violations = append(violations, Violation{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Severity: rule.Severity,
			Message:  blocker.Message,
			Details: map[string]interface{}{
				"guard":            blocker.GuardName,
				"blocker_severity": blocker.Severity,
				"company_id":       vc.CompanyID,
			},
		})
	}
	return violations
}

// evaluateCrossPhase delegates snapshot mutations and context
// recalculations to the cross-phase guard, which refuses by error.
func (v *Validator) evaluateCrossPhase(ctx context.Context, rule catalog.Rule, vc *Context) []Violation {
	if !rule.HasAction(vc.Action) || len(rule.Actions) == 0 {
		return nil
	}

	var err error
	switch rule.ID {
	case catalog.RuleSnapshotFreeze:
		if vc.TargetID == "" {
			return nil
		}
		kind := vc.TargetModel
		if vc.Resource != nil && vc.Resource.Kind != "" {
			kind = vc.Resource.Kind
		}
		err = v.crossGuard.AssertSnapshotImmutability(ctx, vc.TargetID, kind)
	case catalog.RuleContextRecalc:
		source, _ := vc.PayloadString("source")
		err = v.crossGuard.AssertCanMutatePlatformContext(ctx, vc.CompanyID, source, vc.ActorID)
	default:
		return nil
	}

	if err == nil {
		return nil
	}
	return []Violation{{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Severity: rule.Severity,
		Message:  err.Error(),
		Details: map[string]interface{}{
			"attempted_action": vc.Action,
			"target_model":     vc.TargetModel,
			"target_id":        vc.TargetID,
		},
	}}
}

// adapterViolation converts a failing sub-guard into a violation so one
// broken adapter cannot crash the whole validation pass.
func (v *Validator) adapterViolation(rule catalog.Rule, guard string, err error) Violation {
	v.logger.Error("governance guard error",
		zap.String("rule_id", rule.ID),
		zap.String("guard", guard),
		zap.Error(err))
	return Violation{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Severity: rule.Severity,
		Message:  fmt.Sprintf("%s failed: %s", guard, err.Error()),
		Details: map[string]interface{}{
			"guard_error": err.Error(),
		},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsActor(list []catalog.ActorType, a catalog.ActorType) bool {
	for _, v := range list {
		if v == a {
			return true
		}
	}
	return false
}
