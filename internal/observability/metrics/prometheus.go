// Package metrics provides Prometheus metrics for the intake engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	IntakesSubmitted    prometheus.Counter
	IntakeConflicts     *prometheus.CounterVec
	ValidationFailures  *prometheus.CounterVec
	CarePlansGenerated  prometheus.Counter
	CarePlanFailures    prometheus.Counter
	GenerationDuration  prometheus.Histogram
	ActiveSessions      prometheus.Gauge
	OutboxPending       prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		IntakesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intakes_submitted_total",
			Help: "Total intake orders submitted",
		}),
		IntakeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_conflicts_total",
			Help: "Submissions aborted on record conflicts",
		}, []string{"reason"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_validation_failures_total",
			Help: "Field or record validation failures by entity",
		}, []string{"entity"}),
		CarePlansGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_plans_generated_total",
			Help: "Total care plans generated",
		}),
		CarePlanFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_plan_failures_total",
			Help: "Total failed care plan generations",
		}),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_plan_generation_duration_seconds",
			Help:    "Care plan generation duration",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intake_sessions_active",
			Help: "Currently active intake sessions",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.IntakesSubmitted,
		m.IntakeConflicts,
		m.ValidationFailures,
		m.CarePlansGenerated,
		m.CarePlanFailures,
		m.GenerationDuration,
		m.ActiveSessions,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
