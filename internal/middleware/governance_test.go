package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openraise/governance-engine/internal/catalog"
	"github.com/openraise/governance-engine/internal/database"
	"github.com/openraise/governance-engine/internal/guards"
	"github.com/openraise/governance-engine/internal/monitor"
	"github.com/openraise/governance-engine/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type allowGuards struct{}

func (allowGuards) CanPerformAction(context.Context, string, string, string) (guards.PlatformDecision, error) {
	return guards.PlatformDecision{Allowed: true}, nil
}

func (allowGuards) CanInvest(context.Context, string, string) (guards.Eligibility, error) {
	return guards.Eligibility{Allowed: true}, nil
}

func (allowGuards) AssertSnapshotImmutability(context.Context, string, string) error { return nil }

func (allowGuards) AssertCanMutatePlatformContext(context.Context, string, string, string) error {
	return nil
}

type noopLog struct{}

func (noopLog) Insert(context.Context, []database.ViolationLogEntry) error { return nil }
func (noopLog) CountByActorSince(context.Context, string, time.Time) (int, error) {
	return 0, nil
}
func (noopLog) TopRules(context.Context, time.Time, int) ([]database.RuleCount, error) {
	return nil, nil
}
func (noopLog) ActorCounts(context.Context, time.Time) ([]database.ActorCount, error) {
	return nil, nil
}

type noopAlerts struct{}

func (noopAlerts) Create(context.Context, *database.AlertRecord) error { return nil }

type countingCounters struct {
	actions int
}

func (c *countingCounters) IncrTotal(context.Context, time.Time) error            { return nil }
func (c *countingCounters) IncrSeverity(context.Context, time.Time, string) error { return nil }
func (c *countingCounters) IncrRule(context.Context, time.Time, string) error     { return nil }
func (c *countingCounters) IncrActions(context.Context, time.Time) error {
	c.actions++
	return nil
}
func (c *countingCounters) GetTotal(context.Context, time.Time) (int64, error) { return 0, nil }
func (c *countingCounters) GetSeverity(context.Context, time.Time, string) (int64, error) {
	return 0, nil
}
func (c *countingCounters) GetActions(context.Context, time.Time) (int64, error) { return 0, nil }

type stubResolver struct {
	slugs  map[string]string
	actors map[string]string
}

func (s *stubResolver) ResolveSlug(_ context.Context, slug string) (string, error) {
	if id, ok := s.slugs[slug]; ok {
		return id, nil
	}
	return "", assert.AnError
}

func (s *stubResolver) CompanyForActor(_ context.Context, actorID string) (string, error) {
	if id, ok := s.actors[actorID]; ok {
		return id, nil
	}
	return "", assert.AnError
}

type stubResources struct {
	states map[string]*validator.ResourceState
}

func (s *stubResources) ResolveResource(_ context.Context, kind, id string) (*validator.ResourceState, error) {
	return s.states[kind+"/"+id], nil
}

func newTestMonitor(counters monitor.Counters) *monitor.Monitor {
	return monitor.New(noopLog{}, noopAlerts{}, counters, nil, nil, 5*time.Minute, 10, zap.NewNop())
}

func newTestGovernance(t *testing.T, mode validator.Mode, env string, counters monitor.Counters) *Governance {
	t.Helper()
	v := validator.New(catalog.New(), mode, env, allowGuards{}, allowGuards{}, allowGuards{}, nil, zap.NewNop())
	resolver := &stubResolver{
		slugs:  map[string]string{"acme": "comp-acme"},
		actors: map[string]string{"usr-7": "comp-own"},
	}
	resources := &stubResources{states: map[string]*validator.ResourceState{
		"disclosure/disc-approved":     {Kind: "disclosure", Status: "approved"},
		"disclosure/disc-draft":        {Kind: "disclosure", Status: "draft"},
		"context_snapshot/ctx-locked":  {Kind: "context_snapshot", Locked: true},
		"acknowledgement/ack-existing": {Kind: "acknowledgement"},
	}}
	return NewGovernance(v, newTestMonitor(counters), resolver, resources, nil, env, zap.NewNop())
}

func testContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
	return c, rec
}

func TestActorInference(t *testing.T) {
	g := newTestGovernance(t, validator.ModeStrict, validator.EnvDevelopment, &countingCounters{})

	t.Run("explicit actor type wins over path", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/api/v1/investor/companies?actor_type=admin_override", "")
		vc := g.buildContext(c, nil)
		assert.Equal(t, catalog.ActorAdminOverride, vc.ActorType)
	})

	t.Run("body actor type beats path prefix", func(t *testing.T) {
		body := `{"actor_type":"admin_judgment"}`
		c, _ := testContext(http.MethodPost, "/api/v1/investor/companies", body)
		vc := g.buildContext(c, []byte(body))
		assert.Equal(t, catalog.ActorAdminJudgment, vc.ActorType)
	})

	t.Run("path prefix maps to actor", func(t *testing.T) {
		for path, want := range map[string]catalog.ActorType{
			"/api/v1/admin/companies/c1/suspend": catalog.ActorAdminJudgment,
			"/api/v1/issuer/disclosures":         catalog.ActorIssuer,
			"/api/v1/investor/investments":       catalog.ActorInvestor,
			"/api/v1/public/companies":           catalog.ActorPublic,
			"/internal/recalculate":              catalog.ActorSystemEnforcement,
		} {
			c, _ := testContext(http.MethodGet, path, "")
			vc := g.buildContext(c, nil)
			assert.Equal(t, want, vc.ActorType, "path %s", path)
		}
	})

	t.Run("unauthenticated off-pattern caller is system enforcement", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/api/v2/other", "")
		vc := g.buildContext(c, nil)
		assert.Equal(t, catalog.ActorSystemEnforcement, vc.ActorType)
	})

	t.Run("role default applies for authenticated users", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/api/v2/other", "")
		c.Set("user_id", "usr-1")
		c.Set("user_role", "issuer")
		vc := g.buildContext(c, nil)
		assert.Equal(t, catalog.ActorIssuer, vc.ActorType)
		assert.Equal(t, "usr-1", vc.ActorID)
	})

	t.Run("unknown role falls back to investor", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/api/v2/other", "")
		c.Set("user_id", "usr-1")
		c.Set("user_role", "moderator")
		vc := g.buildContext(c, nil)
		assert.Equal(t, catalog.ActorInvestor, vc.ActorType)
	})
}

func TestActionInference(t *testing.T) {
	g := newTestGovernance(t, validator.ModeStrict, validator.EnvDevelopment, &countingCounters{})

	t.Run("explicit action wins", func(t *testing.T) {
		body := `{"action":"recalculate_platform_context"}`
		c, _ := testContext(http.MethodPost, "/api/v1/investor/companies/c1/investments", body)
		vc := g.buildContext(c, []byte(body))
		assert.Equal(t, "recalculate_platform_context", vc.Action)
	})

	t.Run("url patterns map to actions", func(t *testing.T) {
		tests := []struct {
			method string
			path   string
			want   string
		}{
			{http.MethodPost, "/api/v1/investor/companies/c1/investments", "create_investment"},
			{http.MethodPost, "/api/v1/issuer/companies/c1/disclosures", "create_disclosure"},
			{http.MethodPut, "/api/v1/issuer/companies/c1/disclosures/d1", "edit_disclosure"},
			{http.MethodPost, "/api/v1/issuer/companies/c1/disclosures/d1/submit", "submit_disclosure"},
			{http.MethodPost, "/api/v1/admin/companies/c1/suspend", "suspend_company"},
			{http.MethodPut, "/api/v1/admin/companies/c1/platform-context", "edit_platform_context"},
			{http.MethodPut, "/api/v1/issuer/companies/c1/profile", "update_company_profile"},
		}
		for _, tt := range tests {
			c, _ := testContext(tt.method, tt.path, "")
			vc := g.buildContext(c, nil)
			assert.Equal(t, tt.want, vc.Action, "%s %s", tt.method, tt.path)
		}
	})

	t.Run("method fallback", func(t *testing.T) {
		for method, want := range map[string]string{
			http.MethodGet:    "read",
			http.MethodPost:   "create",
			http.MethodPut:    "update",
			http.MethodPatch:  "update",
			http.MethodDelete: "delete",
		} {
			c, _ := testContext(method, "/api/v1/investor/things", "")
			vc := g.buildContext(c, nil)
			assert.Equal(t, want, vc.Action, method)
		}
	})
}

func TestCompanyInference(t *testing.T) {
	g := newTestGovernance(t, validator.ModeStrict, validator.EnvDevelopment, &countingCounters{})

	t.Run("route param wins", func(t *testing.T) {
		body := `{"company_id":"comp-body"}`
		c, _ := testContext(http.MethodPost, "/api/v1/investor/companies/comp-route/investments", body)
		c.Params = gin.Params{{Key: "company_id", Value: "comp-route"}}
		vc := g.buildContext(c, []byte(body))
		assert.Equal(t, "comp-route", vc.CompanyID)
	})

	t.Run("body company id next", func(t *testing.T) {
		body := `{"company_id":"comp-body"}`
		c, _ := testContext(http.MethodPost, "/api/v1/investor/investments", body)
		vc := g.buildContext(c, []byte(body))
		assert.Equal(t, "comp-body", vc.CompanyID)
	})

	t.Run("route id fallback", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/api/v1/public/companies/comp-9", "")
		c.Params = gin.Params{{Key: "id", Value: "comp-9"}}
		vc := g.buildContext(c, nil)
		assert.Equal(t, "comp-9", vc.CompanyID)
	})

	t.Run("slug resolves through resolver", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/api/v1/public/companies/acme", "")
		c.Params = gin.Params{{Key: "slug", Value: "acme"}}
		vc := g.buildContext(c, nil)
		assert.Equal(t, "comp-acme", vc.CompanyID)
	})

	t.Run("actor company as last resort", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/api/v2/other", "")
		c.Set("user_id", "usr-7")
		vc := g.buildContext(c, nil)
		assert.Equal(t, "comp-own", vc.CompanyID)
	})

	t.Run("no reference leaves company empty", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/api/v2/other", "")
		vc := g.buildContext(c, nil)
		assert.Empty(t, vc.CompanyID)
	})
}

func newRouter(g *Governance) *gin.Engine {
	router := gin.New()
	enforced := router.Group("/api/v1", g.Handler())
	enforced.PUT("/admin/companies/:company_id/platform-context", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	enforced.POST("/issuer/companies/:company_id/disclosures", func(c *gin.Context) {
		_, exists := c.Get(ResultKey)
		c.JSON(http.StatusOK, gin.H{"result_attached": exists})
	})
	enforced.PUT("/issuer/companies/:company_id/platform-context", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	enforced.PUT("/issuer/companies/:company_id/disclosures/:target_id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	enforced.POST("/issuer/companies/:company_id/documents", func(c *gin.Context) {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"received_bytes": len(data)})
	})
	return router
}

func TestResourceStateLoading(t *testing.T) {
	g := newTestGovernance(t, validator.ModeStrict, validator.EnvDevelopment, &countingCounters{})

	t.Run("action-derived kind loads disclosure state", func(t *testing.T) {
		c, _ := testContext(http.MethodPut, "/api/v1/issuer/companies/comp-1/disclosures/disc-approved", "")
		c.Params = gin.Params{
			{Key: "company_id", Value: "comp-1"},
			{Key: "target_id", Value: "disc-approved"},
		}
		vc := g.buildContext(c, nil)
		require.NotNil(t, vc.Resource)
		assert.Equal(t, "disclosure", vc.Resource.Kind)
		assert.Equal(t, "approved", vc.Resource.Status)
		assert.True(t, vc.Resource.IsLocked())
	})

	t.Run("explicit target model wins over action", func(t *testing.T) {
		body := `{"action":"edit_disclosure","target_model":"context_snapshot","target_id":"ctx-locked"}`
		c, _ := testContext(http.MethodPut, "/api/v1/admin/snapshots/ctx-locked", body)
		vc := g.buildContext(c, []byte(body))
		require.NotNil(t, vc.Resource)
		assert.Equal(t, "context_snapshot", vc.Resource.Kind)
		assert.True(t, vc.Resource.IsLocked())
	})

	t.Run("unknown target resolves to no state", func(t *testing.T) {
		c, _ := testContext(http.MethodPut, "/api/v1/issuer/companies/comp-1/disclosures/disc-missing", "")
		c.Params = gin.Params{{Key: "target_id", Value: "disc-missing"}}
		vc := g.buildContext(c, nil)
		assert.Nil(t, vc.Resource)
	})

	t.Run("no target id skips the lookup", func(t *testing.T) {
		c, _ := testContext(http.MethodPost, "/api/v1/issuer/companies/comp-1/disclosures", "")
		vc := g.buildContext(c, nil)
		assert.Nil(t, vc.Resource)
	})
}

func TestMiddlewareBlocksApprovedDisclosureEdit(t *testing.T) {
	g := newTestGovernance(t, validator.ModeStrict, validator.EnvDevelopment, &countingCounters{})
	router := newRouter(g)

	t.Run("approved disclosure edit is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut,
			"/api/v1/issuer/companies/comp-1/disclosures/disc-approved", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)

		var body struct {
			Violations []struct {
				RuleName string `json:"rule_name"`
				Severity string `json:"severity"`
			} `json:"violations"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Violations, 1)
		assert.Equal(t, "Approved Disclosure Immutability", body.Violations[0].RuleName)
		assert.Equal(t, "high", body.Violations[0].Severity)
	})

	t.Run("draft disclosure edit passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut,
			"/api/v1/issuer/companies/comp-1/disclosures/disc-draft", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLargeBodyReachesHandlerIntact(t *testing.T) {
	g := newTestGovernance(t, validator.ModeStrict, validator.EnvDevelopment, &countingCounters{})
	router := newRouter(g)

	payload := bytes.Repeat([]byte("a"), bodyLimit+4096)
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/issuer/companies/comp-1/documents", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ReceivedBytes int `json:"received_bytes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, len(payload), body.ReceivedBytes)
}

func TestMiddlewareBlocksWithForbidden(t *testing.T) {
	counters := &countingCounters{}
	g := newTestGovernance(t, validator.ModeStrict, validator.EnvDevelopment, counters)
	router := newRouter(g)

	req := httptest.NewRequest(http.MethodPut,
		"/api/v1/issuer/companies/comp-1/platform-context", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Error           string `json:"error"`
		ProtocolVersion string `json:"protocol_version"`
		EnforcementMode string `json:"enforcement_mode"`
		Violations      []struct {
			RuleName string `json:"rule_name"`
			Message  string `json:"message"`
			Severity string `json:"severity"`
		} `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Contains(t, body.Error, "CRITICAL")
	assert.Equal(t, catalog.ProtocolVersion, body.ProtocolVersion)
	assert.Equal(t, "strict", body.EnforcementMode)
	require.Len(t, body.Violations, 1)
	assert.Equal(t, "Issuer Action Boundaries", body.Violations[0].RuleName)
	assert.Equal(t, "critical", body.Violations[0].Severity)

	assert.Equal(t, 1, counters.actions, "blocked requests still count as attempts")
}

func TestMiddlewarePassesCleanRequests(t *testing.T) {
	counters := &countingCounters{}
	g := newTestGovernance(t, validator.ModeStrict, validator.EnvDevelopment, counters)
	router := newRouter(g)

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/issuer/companies/comp-1/disclosures", strings.NewReader(`{"title":"Q2 report"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result_attached":true`)
	assert.Equal(t, 1, counters.actions)
}

func TestMiddlewareMonitorModeNeverBlocks(t *testing.T) {
	g := newTestGovernance(t, validator.ModeMonitor, validator.EnvDevelopment, &countingCounters{})
	router := newRouter(g)

	req := httptest.NewRequest(http.MethodPut,
		"/api/v1/issuer/companies/comp-1/platform-context", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareInternalErrorPolicy(t *testing.T) {
	// A validator with no catalog panics during evaluation; the panic is
	// recovered and surfaces as an internal error, not a violation.
	newBroken := func(env string) *Governance {
		v := validator.New(nil, validator.ModeStrict, env,
			allowGuards{}, allowGuards{}, allowGuards{}, nil, zap.NewNop())
		return NewGovernance(v, newTestMonitor(&countingCounters{}), nil, nil, nil, env, zap.NewNop())
	}

	t.Run("production fails open", func(t *testing.T) {
		router := newRouter(newBroken(validator.EnvProduction))
		req := httptest.NewRequest(http.MethodPut,
			"/api/v1/issuer/companies/comp-1/platform-context", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("development returns 500", func(t *testing.T) {
		router := newRouter(newBroken(validator.EnvDevelopment))
		req := httptest.NewRequest(http.MethodPut,
			"/api/v1/issuer/companies/comp-1/platform-context", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
