// File: internal/observability/metrics.go
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every steadyhand collector. It is separate from the default
// registerer so that textfile exports only carry our own series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// SessionsAcquired counts sessions handed out, by kind and mode.
	SessionsAcquired = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steadyhand_sessions_acquired_total",
			Help: "Browser sessions successfully acquired.",
		},
		[]string{"kind", "mode"},
	)

	// SessionAcquireFailures counts fatal acquire errors, by kind and reason.
	SessionAcquireFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steadyhand_session_acquire_failures_total",
			Help: "Browser session acquisitions that failed.",
		},
		[]string{"kind", "reason"},
	)

	// ServiceFallbacks counts local launches that bypassed the driver service.
	ServiceFallbacks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steadyhand_service_fallbacks_total",
			Help: "Local launches that fell back to the direct path.",
		},
		[]string{"kind"},
	)

	TeardownErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steadyhand_teardown_errors_total",
			Help: "Errors swallowed while releasing sessions or services.",
		},
		[]string{"step"},
	)

	// ActionOutcomes records how each resilient action converged: "primary",
	// "fallback" or "unmet".
	ActionOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steadyhand_action_outcomes_total",
			Help: "Resilient action results by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	LogLinesFlushed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "steadyhand_log_lines_flushed_total",
			Help: "Log lines attached to reports by the correlation pipeline.",
		},
	)
)

// WriteMetricsTextfile dumps the registry in the node_exporter textfile format.
// An empty path is a no-op.
func WriteMetricsTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, Registry)
}
