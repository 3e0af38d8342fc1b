package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openraise/governance-engine/internal/catalog"
	"github.com/openraise/governance-engine/internal/database"
	"github.com/openraise/governance-engine/internal/monitor"
	"github.com/openraise/governance-engine/internal/validator"
)

// GovernanceHandler handles the governance read API
type GovernanceHandler struct {
	catalog    *catalog.Catalog
	validator  *validator.Validator
	monitor    *monitor.Monitor
	violations *database.ViolationRepository
	alerts     *database.AlertRepository
	logger     *zap.Logger
}

// NewGovernanceHandler creates a new governance handler
func NewGovernanceHandler(
	cat *catalog.Catalog,
	v *validator.Validator,
	m *monitor.Monitor,
	violations *database.ViolationRepository,
	alerts *database.AlertRepository,
	logger *zap.Logger,
) *GovernanceHandler {
	return &GovernanceHandler{
		catalog:    cat,
		validator:  v,
		monitor:    m,
		violations: violations,
		alerts:     alerts,
		logger:     logger,
	}
}

// RegisterRoutes registers all governance routes
func (h *GovernanceHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/governance")

	api.GET("/rules", h.GetRules)
	api.GET("/rules/:rule_id", h.GetRule)

	api.GET("/violations", h.GetViolations)
	api.GET("/metrics", h.GetMetrics)
	api.GET("/compliance-score", h.GetComplianceScore)

	api.GET("/alerts", h.GetAlerts)
	api.POST("/alerts/:alert_id/acknowledge", h.AcknowledgeAlert)

	api.POST("/validate", h.Validate)

	router.GET("/health", h.HealthCheck)
}

func (h *GovernanceHandler) GetRules(c *gin.Context) {
	var rules []catalog.Rule
	if actor := c.Query("actor_type"); actor != "" {
		rules = h.catalog.ForActor(catalog.ActorType(actor))
	} else {
		for _, rule := range h.catalog.All() {
			rules = append(rules, rule)
		}
		sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	}

	c.JSON(http.StatusOK, gin.H{
		"protocol_version": catalog.ProtocolVersion,
		"rules":            rules,
		"total":            len(rules),
	})
}

func (h *GovernanceHandler) GetRule(c *gin.Context) {
	rule, ok := h.catalog.Get(c.Param("rule_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *GovernanceHandler) GetViolations(c *gin.Context) {
	filter := database.ViolationFilter{
		Severity:  c.Query("severity"),
		RuleID:    c.Query("rule_id"),
		ActorType: c.Query("actor_type"),
		CompanyID: c.Query("company_id"),
		Limit:     intQuery(c, "limit", 50),
		Offset:    intQuery(c, "offset", 0),
	}
	if since, ok := timeQuery(c, "since"); ok {
		filter.Since = &since
	}
	if until, ok := timeQuery(c, "until"); ok {
		filter.Until = &until
	}

	entries, total, err := h.violations.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list violations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list violations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"violations": entries,
		"total":      total,
		"limit":      filter.Limit,
		"offset":     filter.Offset,
	})
}

func (h *GovernanceHandler) GetMetrics(c *gin.Context) {
	day, err := dayParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metrics, err := h.monitor.GetMetrics(c.Request.Context(), day)
	if err != nil {
		h.logger.Error("Failed to load governance metrics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load governance metrics"})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *GovernanceHandler) GetComplianceScore(c *gin.Context) {
	day, err := dayParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	score, err := h.monitor.GetComplianceScore(c.Request.Context(), day)
	if err != nil {
		h.logger.Error("Failed to compute compliance score", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute compliance score"})
		return
	}
	c.JSON(http.StatusOK, score)
}

func (h *GovernanceHandler) GetAlerts(c *gin.Context) {
	alerts, err := h.alerts.ListOpen(c.Request.Context(), intQuery(c, "limit", 50))
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": len(alerts)})
}

func (h *GovernanceHandler) AcknowledgeAlert(c *gin.Context) {
	var request struct {
		AcknowledgedBy string `json:"acknowledged_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.alerts.Acknowledge(c.Request.Context(), c.Param("alert_id"), request.AcknowledgedBy)
	if err != nil {
		h.logger.Warn("Failed to acknowledge alert",
			zap.String("alert_id", c.Param("alert_id")), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alert_id":     c.Param("alert_id"),
		"acknowledged": true,
	})
}

// Validate runs a dry-run validation pass. It reports the full result
// and never rejects: a blocking decision comes back as should_block on
// the result, not as a 403.
func (h *GovernanceHandler) Validate(c *gin.Context) {
	var request struct {
		ActorType   string                   `json:"actor_type" binding:"required"`
		ActorID     string                   `json:"actor_id"`
		Action      string                   `json:"action" binding:"required"`
		CompanyID   string                   `json:"company_id"`
		TargetModel string                   `json:"target_model"`
		TargetID    string                   `json:"target_id"`
		Resource    *validator.ResourceState `json:"resource"`
		Payload     map[string]interface{}   `json:"payload"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	vc := &validator.Context{
		ActorType:   catalog.ActorType(request.ActorType),
		ActorID:     request.ActorID,
		Action:      request.Action,
		CompanyID:   request.CompanyID,
		TargetModel: request.TargetModel,
		TargetID:    request.TargetID,
		Resource:    request.Resource,
		Payload:     request.Payload,
		Request: validator.RequestMeta{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			URL:       c.Request.URL.Path,
			Method:    c.Request.Method,
		},
	}

	result, err := h.validator.Validate(c.Request.Context(), vc)
	var vErr *validator.ViolationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusOK, vErr.Result)
		return
	}
	if err != nil {
		h.logger.Error("Dry-run validation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Validation failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *GovernanceHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"service":          "governance-engine",
		"protocol_version": catalog.ProtocolVersion,
		"timestamp":        time.Now(),
	})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func timeQuery(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dayParam(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return day, nil
}
