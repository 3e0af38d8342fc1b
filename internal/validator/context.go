package validator

import "github.com/openraise/governance-engine/internal/catalog"

// ResourceState carries the lock-relevant state of the resource an action
// targets. The integration layer loads it alongside the resource itself;
// the immutability evaluator only reads it.
type ResourceState struct {
	// Kind is one of investment_snapshot, context_snapshot, disclosure,
	// acknowledgement.
	Kind      string `json:"kind"`
	Status    string `json:"status,omitempty"`
	Immutable bool   `json:"immutable,omitempty"`
	Locked    bool   `json:"locked,omitempty"`
}

// IsLocked applies the resource-kind-keyed lock lookup: investment
// snapshots freeze on is_immutable, context snapshots on is_locked,
// disclosures once approved, acknowledgements always.
func (r *ResourceState) IsLocked() bool {
	if r == nil {
		return false
	}
	switch r.Kind {
	case "investment_snapshot":
		return r.Immutable
	case "context_snapshot":
		return r.Locked
	case "disclosure":
		return r.Status == "approved"
	case "acknowledgement":
		return true
	}
	return false
}

// RequestMeta is the request metadata snapshot persisted with every
// violation for the audit trail.
type RequestMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	URL       string `json:"url,omitempty"`
	Method    string `json:"method,omitempty"`
}

// Context is the normalized per-request value object the validator
// evaluates. It is constructed fresh per call and treated as immutable
// for the duration of one validation pass.
type Context struct {
	ActorType   catalog.ActorType      `json:"actor_type"`
	ActorID     string                 `json:"actor_id,omitempty"`
	Action      string                 `json:"action"`
	CompanyID   string                 `json:"company_id,omitempty"`
	TargetModel string                 `json:"target_model,omitempty"`
	TargetID    string                 `json:"target_id,omitempty"`
	Resource    *ResourceState         `json:"resource,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Request     RequestMeta            `json:"request,omitempty"`
}

// PayloadString returns the payload value for key as a non-empty string,
// and whether one was present.
func (c *Context) PayloadString(key string) (string, bool) {
	v, ok := c.Payload[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
