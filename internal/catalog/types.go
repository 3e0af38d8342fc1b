package catalog

// ProtocolVersion identifies the governance rule specification as a whole.
// Additive rule changes bump MINOR, wording fixes bump PATCH. Rule ids are
// stable across versions.
const ProtocolVersion = "1.3.0"

// Severity classifies how dangerous a rule breach is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Enforcement declares how a rule is meant to be acted on when violated.
type Enforcement string

const (
	EnforcementBlock   Enforcement = "block"
	EnforcementEnforce Enforcement = "enforce"
	EnforcementWarn    Enforcement = "warn"
)

// Family identifies which of the six governance rule sets a rule belongs to.
// The validator dispatches evaluation logic on this tag.
type Family string

const (
	FamilyPlatformSupremacy Family = "platform_supremacy"
	FamilyImmutability      Family = "immutability"
	FamilyActorSeparation   Family = "actor_separation"
	FamilyAttribution       Family = "attribution"
	FamilyBuyEligibility    Family = "buy_eligibility"
	FamilyCrossPhase        Family = "cross_phase"
)

// ActorType is the category of entity attempting a platform action.
type ActorType string

const (
	ActorIssuer            ActorType = "issuer"
	ActorInvestor          ActorType = "investor"
	ActorAdminJudgment     ActorType = "admin_judgment"
	ActorAdminOverride     ActorType = "admin_override"
	ActorSystemEnforcement ActorType = "system_enforcement"
	ActorAutomatedPlatform ActorType = "automated_platform"
	ActorPublic            ActorType = "public"

	// ActorAll is the appliesTo wildcard, never a real actor.
	ActorAll ActorType = "all"
)

// Rule is a single immutable governance rule. Rules are created once at
// process start from the static catalog and never mutated afterwards.
type Rule struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Family      Family      `json:"family"`
	Severity    Severity    `json:"severity"`
	Enforcement Enforcement `json:"enforcement"`

	// AppliesTo scopes the rule to actor types; the wildcard ActorAll
	// matches every actor. This is the coarse prefilter used by
	// ForActor; per-family evaluators apply finer action logic.
	AppliesTo []ActorType `json:"applies_to"`

	// Actions restricts evaluation to the named actions when non-empty.
	// Used by attribution and cross-phase rules.
	Actions []string `json:"actions,omitempty"`

	// BlockedActions / AllowedActions drive the actor-separation and
	// immutability evaluators. A rule uses at most one of the two.
	BlockedActions []string `json:"blocked_actions,omitempty"`
	AllowedActions []string `json:"allowed_actions,omitempty"`

	// RequiredFields lists payload keys the attribution evaluator
	// demands to be present and non-empty.
	RequiredFields []string `json:"required_fields,omitempty"`

	// ValidActorTypes further restricts which actors may perform the
	// rule's actions at all (attribution family).
	ValidActorTypes []ActorType `json:"valid_actor_types,omitempty"`

	// RequiredConditions are named preconditions documented for
	// operators; they are informational on the rule record itself.
	RequiredConditions []string `json:"required_conditions,omitempty"`

	// Exceptions names actor types exempt from this rule.
	Exceptions []ActorType `json:"exceptions,omitempty"`
}

// AppliesToActor reports whether the rule's scope covers the given actor,
// honouring the wildcard and the exception list.
func (r Rule) AppliesToActor(actor ActorType) bool {
	for _, exc := range r.Exceptions {
		if exc == actor {
			return false
		}
	}
	for _, at := range r.AppliesTo {
		if at == ActorAll || at == actor {
			return true
		}
	}
	return false
}

// HasAction reports whether the rule's Actions list covers the given
// action. An empty list matches every action.
func (r Rule) HasAction(action string) bool {
	if len(r.Actions) == 0 {
		return true
	}
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}
