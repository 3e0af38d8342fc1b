// Package middleware wires governance validation into the HTTP layer.
// It infers the validation context from the request, runs the validator
// and translates a blocking decision into a 403 rejection.
package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/openraise/governance-engine/internal/catalog"
	"github.com/openraise/governance-engine/internal/metrics"
	"github.com/openraise/governance-engine/internal/monitor"
	"github.com/openraise/governance-engine/internal/validator"
)

// ResultKey is the gin context key the validation result is stored under.
const ResultKey = "governance_result"

// bodyLimit caps how much of the request body the middleware inspects.
const bodyLimit = 1 << 20

// actorPrefixes maps URL path prefixes to actor types, checked in order.
var actorPrefixes = []struct {
	prefix string
	actor  catalog.ActorType
}{
	{"/api/v1/admin", catalog.ActorAdminJudgment},
	{"/api/v1/issuer", catalog.ActorIssuer},
	{"/api/v1/investor", catalog.ActorInvestor},
	{"/api/v1/public", catalog.ActorPublic},
	{"/internal", catalog.ActorSystemEnforcement},
}

// actionPatterns maps method plus path fragment to a platform action,
// checked in order, first match wins. The generic method fallback
// catches everything else.
var actionPatterns = []struct {
	method   string
	fragment string
	action   string
}{
	{http.MethodPost, "/investments", "create_investment"},
	{http.MethodPost, "/disclosures/submit", "submit_disclosure"},
	{http.MethodPost, "/disclosures", "create_disclosure"},
	{http.MethodPut, "/disclosures", "edit_disclosure"},
	{http.MethodPatch, "/disclosures", "edit_disclosure"},
	{http.MethodPost, "/suspend", "suspend_company"},
	{http.MethodPut, "/platform-context", "edit_platform_context"},
	{http.MethodPatch, "/platform-context", "edit_platform_context"},
	{http.MethodPut, "/profile", "update_company_profile"},
	{http.MethodPatch, "/profile", "update_company_profile"},
	{http.MethodPost, "/questions", "respond_to_question"},
	{http.MethodPost, "/documents", "upload_document"},
}

var methodActions = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
	http.MethodGet:    "read",
}

var roleActors = map[string]catalog.ActorType{
	"admin":    catalog.ActorAdminJudgment,
	"issuer":   catalog.ActorIssuer,
	"investor": catalog.ActorInvestor,
}

// resourceKinds maps mutating actions to the lockable resource kind they
// target, for the resource-state lookup.
var resourceKinds = map[string]string{
	"edit_disclosure":            "disclosure",
	"delete_disclosure":          "disclosure",
	"edit_acknowledgement":       "acknowledgement",
	"delete_acknowledgement":     "acknowledgement",
	"edit_investment_snapshot":   "investment_snapshot",
	"delete_investment_snapshot": "investment_snapshot",
	"edit_context_snapshot":      "context_snapshot",
	"delete_context_snapshot":    "context_snapshot",
}

// Governance is the enforcement middleware.
type Governance struct {
	validator   *validator.Validator
	monitor     *monitor.Monitor
	resolver    CompanyResolver
	resources   ResourceResolver
	collector   *metrics.Collector
	environment string
	logger      *zap.Logger
}

func NewGovernance(
	v *validator.Validator,
	m *monitor.Monitor,
	resolver CompanyResolver,
	resources ResourceResolver,
	collector *metrics.Collector,
	environment string,
	logger *zap.Logger,
) *Governance {
	return &Governance{
		validator:   v,
		monitor:     m,
		resolver:    resolver,
		resources:   resources,
		collector:   collector,
		environment: environment,
		logger:      logger,
	}
}

// Handler returns the gin handler enforcing governance on every request
// it is mounted on.
func (g *Governance) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		body := peekBody(c)
		vc := g.buildContext(c, body)

		g.monitor.IncrementActionCounter(c.Request.Context())

		result, err := g.validator.Validate(c.Request.Context(), vc)

		var vErr *validator.ViolationError
		switch {
		case err == nil:
			c.Set(ResultKey, result)
			outcome := "passed"
			if result != nil && !result.Passed {
				outcome = "violations"
			}
			g.record(vc, outcome, start)
			c.Next()

		case errors.As(err, &vErr):
			g.record(vc, "blocked", start)
			if g.collector != nil {
				g.collector.RecordBlocked(string(vErr.Result.EnforcementMode))
			}
			c.AbortWithStatusJSON(http.StatusForbidden, blockedResponse(vErr))

		default:
			// Unexpected internal failure. In production governance fails
			// open so a monitoring bug cannot take the platform down.
			if g.environment == validator.EnvProduction {
				g.logger.Error("governance middleware failed open",
					zap.String("action", vc.Action),
					zap.String("actor_type", string(vc.ActorType)),
					zap.Error(err))
				g.record(vc, "failed_open", start)
				c.Next()
				return
			}
			g.record(vc, "error", start)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "governance validation failed",
			})
		}
	}
}

// buildContext infers actor type, action and company reference from the
// request, each by its own priority order.
func (g *Governance) buildContext(c *gin.Context, body []byte) *validator.Context {
	actorType, actorID := g.inferActor(c, body)
	vc := &validator.Context{
		ActorType:   actorType,
		ActorID:     actorID,
		Action:      inferAction(c, body),
		CompanyID:   g.inferCompany(c, body, actorID),
		TargetModel: gjson.GetBytes(body, "target_model").String(),
		TargetID:    firstNonEmpty(c.Param("target_id"), gjson.GetBytes(body, "target_id").String()),
		Payload:     payloadMap(body),
		Request: validator.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			URL:       c.Request.URL.Path,
			Method:    c.Request.Method,
		},
	}
	vc.Resource = g.loadResource(c.Request.Context(), vc)
	return vc
}

// loadResource fetches the target's lock state when the action names a
// lockable resource. An explicit target_model wins over the
// action-derived kind; lookup failures resolve to no state.
func (g *Governance) loadResource(ctx context.Context, vc *validator.Context) *validator.ResourceState {
	if g.resources == nil || vc.TargetID == "" {
		return nil
	}
	kind := vc.TargetModel
	if kind == "" {
		kind = resourceKinds[vc.Action]
	}
	if kind == "" {
		return nil
	}
	state, err := g.resources.ResolveResource(ctx, kind, vc.TargetID)
	if err != nil {
		g.logger.Warn("failed to load target resource state",
			zap.String("kind", kind),
			zap.String("target_id", vc.TargetID),
			zap.Error(err))
		return nil
	}
	return state
}

func (g *Governance) inferActor(c *gin.Context, body []byte) (catalog.ActorType, string) {
	actorID := c.GetString("user_id")

	// Explicit declaration wins.
	if explicit := firstNonEmpty(c.Query("actor_type"), gjson.GetBytes(body, "actor_type").String()); explicit != "" {
		return catalog.ActorType(explicit), actorID
	}

	path := c.Request.URL.Path
	for _, p := range actorPrefixes {
		if strings.HasPrefix(path, p.prefix) {
			return p.actor, actorID
		}
	}

	// No authenticated user means a platform-internal caller.
	if actorID == "" {
		return catalog.ActorSystemEnforcement, ""
	}

	if actor, ok := roleActors[c.GetString("user_role")]; ok {
		return actor, actorID
	}
	return catalog.ActorInvestor, actorID
}

func inferAction(c *gin.Context, body []byte) string {
	if explicit := firstNonEmpty(c.Query("action"), gjson.GetBytes(body, "action").String()); explicit != "" {
		return explicit
	}

	path := c.Request.URL.Path
	for _, p := range actionPatterns {
		if c.Request.Method == p.method && strings.Contains(path, p.fragment) {
			return p.action
		}
	}

	if action, ok := methodActions[c.Request.Method]; ok {
		return action
	}
	return "unknown"
}

func (g *Governance) inferCompany(c *gin.Context, body []byte, actorID string) string {
	if ref := firstNonEmpty(c.Param("company"), c.Param("company_id")); ref != "" {
		return ref
	}
	if ref := gjson.GetBytes(body, "company_id").String(); ref != "" {
		return ref
	}
	if ref := c.Param("id"); ref != "" {
		return ref
	}
	if slug := c.Param("slug"); slug != "" && g.resolver != nil {
		id, err := g.resolver.ResolveSlug(c.Request.Context(), slug)
		if err != nil {
			g.logger.Warn("failed to resolve company slug",
				zap.String("slug", slug), zap.Error(err))
			return ""
		}
		return id
	}
	if actorID != "" && g.resolver != nil {
		if id, err := g.resolver.CompanyForActor(c.Request.Context(), actorID); err == nil {
			return id
		}
	}
	return ""
}

func (g *Governance) record(vc *validator.Context, outcome string, start time.Time) {
	if g.collector == nil {
		return
	}
	g.collector.RecordValidation(string(vc.ActorType), vc.Action, outcome, time.Since(start))
}

// blockedResponse shapes the 403 body. Only CRITICAL and HIGH violations
// are exposed; internal detail fields never leak to the caller.
func blockedResponse(vErr *validator.ViolationError) gin.H {
	result := vErr.Result
	exposed := make([]gin.H, 0, len(result.Critical)+len(result.High))
	for _, v := range append(append([]validator.Violation{}, result.Critical...), result.High...) {
		exposed = append(exposed, gin.H{
			"rule_name": v.RuleName,
			"message":   v.Message,
			"severity":  v.Severity,
		})
	}
	return gin.H{
		"error":            vErr.Reason,
		"protocol_version": result.ProtocolVersion,
		"enforcement_mode": result.EnforcementMode,
		"violations":       exposed,
	}
}

// peekBody reads up to bodyLimit of the request body for inference and
// reattaches the full stream, unread remainder included, so downstream
// handlers see the body intact.
func peekBody(c *gin.Context) []byte {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, bodyLimit))
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))
	return body
}

func payloadMap(body []byte) map[string]interface{} {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil
	}
	payload := make(map[string]interface{})
	parsed.ForEach(func(key, value gjson.Result) bool {
		payload[key.String()] = value.Value()
		return true
	})
	return payload
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
