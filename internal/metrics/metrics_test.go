package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordToolDispatch(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordToolDispatch("read_file", "success", 0.02)
	m.RecordToolDispatch("read_file", "success", 0.01)
	m.RecordToolDispatch("nope", "unknown", 0)

	expected := `
		# HELP conductor_tool_dispatches_total Tool invocations by tool name and status
		# TYPE conductor_tool_dispatches_total counter
		conductor_tool_dispatches_total{status="success",tool="read_file"} 2
		conductor_tool_dispatches_total{status="unknown",tool="nope"} 1
	`
	if err := testutil.CollectAndCompare(m.ToolDispatches, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
	if count := testutil.CollectAndCount(m.ToolDuration); count != 1 {
		t.Errorf("Expected 1 duration series, got %d", count)
	}
}

func TestRecordContinuationAndRetry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordContinuation("CONTEXT_EXHAUSTED")
	m.RecordContinuation("CONTEXT_EXHAUSTED")
	m.RecordRetry("anthropic", "RATE_LIMIT")

	if got := testutil.ToFloat64(m.Continuations.WithLabelValues("CONTEXT_EXHAUSTED")); got != 2 {
		t.Errorf("continuations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ProviderRetries.WithLabelValues("anthropic", "RATE_LIMIT")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordProviderRequest("x", "success")
	m.RecordRetry("x", "TRANSPORT")
	m.RecordToolDispatch("x", "error", 1)
	m.RecordApprovalWait("cleared", 1)
	m.RecordContinuation("TIMEOUT")
	m.RecordIteration()
}
