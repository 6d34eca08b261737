// Package metrics exposes Prometheus instrumentation for the orchestration
// engine: model requests, retries, tool dispatch, approval waits and
// continuations.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can be built without instrumentation in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// ProviderRequests counts model calls.
	// Labels: provider, outcome (success|error kind)
	ProviderRequests *prometheus.CounterVec

	// ProviderRetries counts retried model calls.
	// Labels: provider, kind
	ProviderRetries *prometheus.CounterVec

	// ToolDispatches counts tool invocations.
	// Labels: tool, status (success|error|unknown|pending)
	ToolDispatches *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// ApprovalWait measures time dependent tools spent waiting on the
	// approval gate. Labels: outcome (cleared|timeout|cancelled)
	ApprovalWait *prometheus.HistogramVec

	// Continuations counts continuation sessions started.
	// Labels: reason (CONTEXT_EXHAUSTED|TIMEOUT)
	Continuations *prometheus.CounterVec

	// Iterations counts loop iterations across sessions.
	Iterations prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ProviderRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_provider_requests_total",
				Help: "Model streaming calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_provider_retries_total",
				Help: "Retried model calls by provider and error kind",
			},
			[]string{"provider", "kind"},
		),
		ToolDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_tool_dispatches_total",
				Help: "Tool invocations by tool name and status",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_tool_duration_seconds",
				Help:    "Tool execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		ApprovalWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_approval_wait_seconds",
				Help:    "Time dependent tools waited for pending approvals",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		Continuations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_continuations_total",
				Help: "Continuation sessions started by reason",
			},
			[]string{"reason"},
		),
		Iterations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conductor_loop_iterations_total",
				Help: "Loop iterations run across all sessions",
			},
		),
	}
}

func (m *Metrics) RecordProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordRetry(provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) RecordToolDispatch(tool, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolDispatches.WithLabelValues(tool, status).Inc()
	if durationSeconds > 0 {
		m.ToolDuration.WithLabelValues(tool).Observe(durationSeconds)
	}
}

func (m *Metrics) RecordApprovalWait(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ApprovalWait.WithLabelValues(outcome).Observe(durationSeconds)
}

func (m *Metrics) RecordContinuation(reason string) {
	if m == nil {
		return
	}
	m.Continuations.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordIteration() {
	if m == nil {
		return
	}
	m.Iterations.Inc()
}
