package catalog

// Rule ids. Stable across protocol versions; referenced by the validator,
// the violation log and operator tooling.
const (
	RulePlatformStateSupremacy = "RULE_1_1_PLATFORM_STATE_SUPREMACY"
	RuleEnforcementPrecedence  = "RULE_1_2_ENFORCEMENT_PRECEDENCE"

	RuleInvestmentSnapshots  = "RULE_2_1_INVESTMENT_SNAPSHOTS"
	RuleContextSnapshots     = "RULE_2_2_CONTEXT_SNAPSHOTS"
	RuleApprovedDisclosures  = "RULE_2_3_APPROVED_DISCLOSURES"
	RuleAcknowledgements     = "RULE_2_4_ACKNOWLEDGEMENTS"

	RuleIssuerBoundaries   = "RULE_3_1_ISSUER_BOUNDARIES"
	RuleInvestorBoundaries = "RULE_3_2_INVESTOR_BOUNDARIES"
	RulePublicReadOnly     = "RULE_3_3_PUBLIC_READONLY"

	RuleActionAttribution   = "RULE_4_1_ACTION_ATTRIBUTION"
	RuleAdminReasonRequired = "RULE_4_2_ADMIN_REASON_REQUIRED"

	RuleOpenPhaseOnly  = "RULE_5_1_OPEN_PHASE_ONLY"
	RuleInvestorGuards = "RULE_5_2_INVESTOR_GUARDS"

	RuleSnapshotFreeze = "RULE_6_1_SNAPSHOT_FREEZE"
	RuleContextRecalc  = "RULE_6_2_CONTEXT_RECALC"
)

// staticRules is the full compiled-in governance catalog, all six rule
// sets merged. Order here is irrelevant; lookup functions sort.
var staticRules = []Rule{
	// Rule set 1: platform supremacy. The platform state machine outranks
	// every actor; whether an action is permitted in the company's current
	// state is decided by the platform-state guard.
	{
		ID:          RulePlatformStateSupremacy,
		Name:        "Platform State Supremacy",
		Description: "No actor may perform an action the company's current platform state forbids.",
		Family:      FamilyPlatformSupremacy,
		Severity:    SeverityCritical,
		Enforcement: EnforcementBlock,
		AppliesTo:   []ActorType{ActorAll},
		Exceptions:  []ActorType{ActorSystemEnforcement},
	},
	{
		ID:          RuleEnforcementPrecedence,
		Name:        "Enforcement Precedence",
		Description: "Suspension and enforcement holds placed by the platform take precedence over issuer and investor intent.",
		Family:      FamilyPlatformSupremacy,
		Severity:    SeverityHigh,
		Enforcement: EnforcementBlock,
		AppliesTo:   []ActorType{ActorIssuer, ActorInvestor, ActorPublic},
		Exceptions:  []ActorType{ActorSystemEnforcement},
	},

	// Rule set 2: immutability. Frozen records stay frozen.
	{
		ID:             RuleInvestmentSnapshots,
		Name:           "Investment Snapshot Immutability",
		Description:    "Investment snapshots marked immutable can never be edited or deleted.",
		Family:         FamilyImmutability,
		Severity:       SeverityCritical,
		Enforcement:    EnforcementBlock,
		AppliesTo:      []ActorType{ActorAll},
		BlockedActions: []string{"edit_investment_snapshot", "delete_investment_snapshot"},
	},
	{
		ID:             RuleContextSnapshots,
		Name:           "Platform Context Snapshot Immutability",
		Description:    "Locked platform-context snapshots can never be edited or deleted.",
		Family:         FamilyImmutability,
		Severity:       SeverityCritical,
		Enforcement:    EnforcementBlock,
		AppliesTo:      []ActorType{ActorAll},
		BlockedActions: []string{"edit_context_snapshot", "delete_context_snapshot"},
	},
	{
		ID:             RuleApprovedDisclosures,
		Name:           "Approved Disclosure Immutability",
		Description:    "Disclosures that reached approved status cannot be edited or deleted.",
		Family:         FamilyImmutability,
		Severity:       SeverityHigh,
		Enforcement:    EnforcementBlock,
		AppliesTo:      []ActorType{ActorIssuer, ActorInvestor, ActorAdminJudgment, ActorPublic},
		BlockedActions: []string{"edit_disclosure", "delete_disclosure"},
	},
	{
		ID:             RuleAcknowledgements,
		Name:           "Acknowledgement Immutability",
		Description:    "Investor acknowledgements are write-once and can never be altered.",
		Family:         FamilyImmutability,
		Severity:       SeverityHigh,
		Enforcement:    EnforcementBlock,
		AppliesTo:      []ActorType{ActorAll},
		BlockedActions: []string{"edit_acknowledgement", "delete_acknowledgement"},
	},

	// Rule set 3: actor separation. Issuers, investors and the public stay
	// inside their lanes. Issuer and public rules are whitelists, the
	// investor rule is a blacklist; a rule uses exactly one mode.
	{
		ID:          RuleIssuerBoundaries,
		Name:        "Issuer Action Boundaries",
		Description: "Issuers may only perform issuer-scoped actions against their own company.",
		Family:      FamilyActorSeparation,
		Severity:    SeverityCritical,
		Enforcement: EnforcementBlock,
		AppliesTo:   []ActorType{ActorIssuer},
		AllowedActions: []string{
			"read", "create_disclosure", "edit_disclosure", "submit_disclosure",
			"update_company_profile", "respond_to_question", "upload_document",
		},
	},
	{
		ID:          RuleInvestorBoundaries,
		Name:        "Investor Action Boundaries",
		Description: "Investors can never exercise issuer or admin capabilities.",
		Family:      FamilyActorSeparation,
		Severity:    SeverityCritical,
		Enforcement: EnforcementBlock,
		AppliesTo:   []ActorType{ActorInvestor},
		BlockedActions: []string{
			"edit_disclosure", "approve_disclosure", "edit_platform_context",
			"suspend_company", "reinstate_company", "update_company_profile",
		},
	},
	{
		ID:             RulePublicReadOnly,
		Name:           "Public Read-Only Access",
		Description:    "Unauthenticated public actors are limited to read access.",
		Family:         FamilyActorSeparation,
		Severity:       SeverityHigh,
		Enforcement:    EnforcementBlock,
		AppliesTo:      []ActorType{ActorPublic},
		AllowedActions: []string{"read"},
	},

	// Rule set 4: attribution. Sensitive admin actions must say who acted
	// and why.
	{
		ID:             RuleActionAttribution,
		Name:           "Admin Action Attribution",
		Description:    "Admin judgments must be attributable to a concrete admin user.",
		Family:         FamilyAttribution,
		Severity:       SeverityHigh,
		Enforcement:    EnforcementEnforce,
		AppliesTo:      []ActorType{ActorAdminJudgment, ActorAdminOverride, ActorSystemEnforcement},
		Actions:        []string{"suspend_company", "reinstate_company", "force_edit_disclosure", "override_platform_state"},
		RequiredFields: []string{"actor_type", "admin_user_id"},
		ValidActorTypes: []ActorType{
			ActorAdminJudgment, ActorAdminOverride, ActorSystemEnforcement,
		},
	},
	{
		ID:             RuleAdminReasonRequired,
		Name:           "Admin Reason Required",
		Description:    "Company suspension and other admin judgments require a recorded reason.",
		Family:         FamilyAttribution,
		Severity:       SeverityHigh,
		Enforcement:    EnforcementEnforce,
		AppliesTo:      []ActorType{ActorAdminJudgment, ActorAdminOverride},
		Actions:        []string{"suspend_company", "reinstate_company", "force_edit_disclosure", "override_platform_state"},
		RequiredFields: []string{"reason"},
	},

	// Rule set 5: buy eligibility. Investment creation runs the full
	// eligibility guard chain.
	{
		ID:                 RuleOpenPhaseOnly,
		Name:               "Investments In Open Phase Only",
		Description:        "Investments may only be created while the company raise phase is open.",
		Family:             FamilyBuyEligibility,
		Severity:           SeverityCritical,
		Enforcement:        EnforcementBlock,
		AppliesTo:          []ActorType{ActorInvestor, ActorAutomatedPlatform},
		Actions:            []string{"create_investment"},
		RequiredConditions: []string{"raise_phase_open"},
	},
	{
		ID:                 RuleInvestorGuards,
		Name:               "Investor Eligibility Guards",
		Description:        "Every critical investor eligibility blocker (KYC, accreditation, limits) stops investment creation.",
		Family:             FamilyBuyEligibility,
		Severity:           SeverityCritical,
		Enforcement:        EnforcementBlock,
		AppliesTo:          []ActorType{ActorInvestor, ActorAutomatedPlatform},
		Actions:            []string{"create_investment"},
		RequiredConditions: []string{"kyc_approved", "within_investment_limits"},
	},

	// Rule set 6: cross-phase enforcement. Phase transitions freeze
	// snapshots; later phases cannot quietly rewrite earlier ones.
	{
		ID:          RuleSnapshotFreeze,
		Name:        "Cross-Phase Snapshot Freeze",
		Description: "Snapshots belonging to a closed phase may not be mutated from any later phase.",
		Family:      FamilyCrossPhase,
		Severity:    SeverityCritical,
		Enforcement: EnforcementBlock,
		AppliesTo:   []ActorType{ActorAll},
		Actions: []string{
			"edit_investment_snapshot", "delete_investment_snapshot",
			"edit_context_snapshot", "delete_context_snapshot",
		},
	},
	{
		ID:          RuleContextRecalc,
		Name:        "Platform Context Recalculation Control",
		Description: "Platform-context recalculation is only permitted from authorized mutation sources.",
		Family:      FamilyCrossPhase,
		Severity:    SeverityHigh,
		Enforcement: EnforcementBlock,
		AppliesTo:   []ActorType{ActorAdminJudgment, ActorAdminOverride, ActorAutomatedPlatform},
		Actions:     []string{"recalculate_platform_context", "edit_platform_context"},
		Exceptions:  []ActorType{ActorSystemEnforcement},
	},
}
