// Package metrics exposes Prometheus instrumentation for generation
// sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mpataki/foundry/internal/models"
)

const namespace = "foundry"

type Metrics struct {
	// SessionsTotal counts finished sessions. Labels: status.
	SessionsTotal *prometheus.CounterVec
	// SessionIterations observes how many attempts a session needed.
	// Labels: status.
	SessionIterations *prometheus.HistogramVec
	ActiveSessions    prometheus.Gauge

	// StageRunsTotal counts stage executions. Labels: stage, result.
	StageRunsTotal *prometheus.CounterVec
	// StageDurationSeconds. Labels: stage.
	StageDurationSeconds *prometheus.HistogramVec
	// ValidationIssuesTotal. Labels: kind.
	ValidationIssuesTotal *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a private registry,
// which keeps tests and repeated construction from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished generation sessions by terminal status.",
		}, []string{"status"}),
		SessionIterations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_iterations",
			Help:      "Iterations used per finished session.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}, []string{"status"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently running.",
		}),
		StageRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage executions by stage and result.",
		}, []string{"stage", "result"}),
		StageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of stage executions.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"stage"}),
		ValidationIssuesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_issues_total",
			Help:      "Validation errors found in generated projects by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionFinished(status models.SessionStatus, iterations int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(string(status)).Inc()
	m.SessionIterations.WithLabelValues(string(status)).Observe(float64(iterations))
}

func (m *Metrics) StageFinished(out models.StageOutcome) {
	if m == nil {
		return
	}
	result := "success"
	if !out.Success {
		result = "failure"
	}
	m.StageRunsTotal.WithLabelValues(string(out.Stage), result).Inc()
	m.StageDurationSeconds.WithLabelValues(string(out.Stage)).Observe(out.Duration.Seconds())
	if out.Validation != nil {
		for _, issue := range out.Validation.Errors {
			m.ValidationIssuesTotal.WithLabelValues(string(issue.Kind)).Inc()
		}
	}
}

