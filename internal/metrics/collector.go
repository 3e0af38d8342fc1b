// Package metrics exposes Prometheus metrics for the governance engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	validationsTotal   *prometheus.CounterVec
	violationsTotal    *prometheus.CounterVec
	blockedTotal       *prometheus.CounterVec
	validationDuration prometheus.Histogram
	complianceScore    prometheus.Gauge
	alertsTotal        *prometheus.CounterVec
}

// NewCollector registers and returns the governance metrics.
func NewCollector() *Collector {
	return &Collector{
		validationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_validations_total",
				Help: "Total number of governance validation passes",
			},
			[]string{"actor_type", "action", "outcome"},
		),
		violationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_violations_total",
				Help: "Total number of governance violations detected",
			},
			[]string{"severity", "rule_id"},
		),
		blockedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_blocked_actions_total",
				Help: "Total number of actions blocked by governance enforcement",
			},
			[]string{"enforcement_mode"},
		),
		validationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "governance_validation_duration_seconds",
				Help:    "Duration of governance validation passes",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to 512ms
			},
		),
		complianceScore: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "governance_compliance_score",
				Help: "Most recently computed daily compliance score",
			},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_alerts_total",
				Help: "Total number of governance alerts raised",
			},
			[]string{"severity"},
		),
	}
}

// RecordValidation records one validation pass.
func (c *Collector) RecordValidation(actorType, action, outcome string, duration time.Duration) {
	c.validationsTotal.WithLabelValues(actorType, action, outcome).Inc()
	c.validationDuration.Observe(duration.Seconds())
}

// RecordViolation records one detected violation.
func (c *Collector) RecordViolation(severity, ruleID string) {
	c.violationsTotal.WithLabelValues(severity, ruleID).Inc()
}

// RecordBlocked records one blocked action.
func (c *Collector) RecordBlocked(mode string) {
	c.blockedTotal.WithLabelValues(mode).Inc()
}

// RecordAlert records one raised alert.
func (c *Collector) RecordAlert(severity string) {
	c.alertsTotal.WithLabelValues(severity).Inc()
}

// SetComplianceScore publishes the latest computed compliance score.
func (c *Collector) SetComplianceScore(score float64) {
	c.complianceScore.Set(score)
}
