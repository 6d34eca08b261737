package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/samsaffron/conductor/internal/llm"
	"github.com/samsaffron/conductor/internal/metrics"
)

const (
	DefaultPollInterval    = time.Second
	DefaultApprovalTimeout = 300 * time.Second
)

// Outcome is the result of dispatching one call.
type Outcome struct {
	Result llm.ToolResult
	// Finished is set when a finishing tool (task_complete) succeeded.
	Finished bool
}

// Dispatcher runs model-requested tool calls. Calls to dependent tools wait
// until the approval gate has no pending changes, or the approval timeout
// passes, before they execute.
type Dispatcher struct {
	registry     *Registry
	gate         ApprovalGate
	pollInterval time.Duration
	timeout      time.Duration
	metrics      *metrics.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPollInterval sets how often the gate is polled while waiting.
func WithPollInterval(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.pollInterval = d
		}
	}
}

// WithApprovalTimeout bounds how long a dependent call waits.
func WithApprovalTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(disp *Dispatcher) { disp.metrics = m }
}

// NewDispatcher creates a dispatcher over registry. gate may be nil, in
// which case dependent tools never wait.
func NewDispatcher(registry *Registry, gate ApprovalGate, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:     registry,
		gate:         gate,
		pollInterval: DefaultPollInterval,
		timeout:      DefaultApprovalTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Specs returns the specs of all dispatchable tools.
func (d *Dispatcher) Specs() []llm.ToolSpec {
	return d.registry.Specs()
}

// Names returns the names of all dispatchable tools.
func (d *Dispatcher) Names() []string {
	return d.registry.Names()
}

// Preview returns the short description of a call, e.g. "(main.go)".
func (d *Dispatcher) Preview(call llm.ToolCall) string {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return ""
	}
	preview := tool.Preview(call.Arguments)
	if preview == "" || strings.HasPrefix(preview, "(") {
		return preview
	}
	return "(" + preview + ")"
}

// Dispatch executes call and returns its result. It never fails: unknown
// tools, bad arguments and tool failures all come back as error results the
// model can react to. notify receives informational text chunks, such as
// the notice that a call is waiting for reviews; it may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall, notify func(llm.Chunk)) Outcome {
	start := time.Now()
	if notify == nil {
		notify = func(llm.Chunk) {}
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		d.metrics.RecordToolDispatch(call.Name, "unknown", 0)
		msg := formatToolError(NewToolErrorf(ErrUnknownTool, "unknown tool %q; available tools: %s", call.Name, strings.Join(d.registry.Names(), ", ")))
		return Outcome{Result: errorResult(call, msg, llm.KindUnknownTool)}
	}

	var notes []string
	if dt, ok := tool.(DependentTool); ok && dt.WaitsForApprovals() {
		note, err := d.awaitApprovals(ctx, call, notify)
		if err != nil {
			d.metrics.RecordToolDispatch(call.Name, "cancelled", time.Since(start).Seconds())
			return Outcome{Result: errorResult(call, "Error [CANCELLED]: "+err.Error(), llm.KindCancelled)}
		}
		if note != "" {
			notes = append(notes, note)
		}
	}

	if keys, ok := SchemaKeys(tool.Spec().Schema); ok {
		if warning := WarnUnknownParams(call.Arguments, keys); warning != "" {
			notes = append(notes, strings.TrimRight(warning, "\n"))
		}
	}

	output, err := d.execute(ctx, tool, call)
	if err != nil {
		slog.Warn("tool execution failed", "tool", call.Name, "id", call.ID, "error", err)
		d.metrics.RecordToolDispatch(call.Name, "error", time.Since(start).Seconds())
		msg := formatToolError(NewToolErrorf(ErrExecutionFailed, "%v", err))
		return Outcome{Result: errorResult(call, withNotes(msg, notes), llm.KindToolExecution)}
	}

	result := llm.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: withNotes(output.Content, notes),
		IsError: output.IsError,
	}
	status := "ok"
	if output.IsError {
		result.Kind = llm.KindToolExecution
		status = "error"
		slog.Debug("tool returned error", "tool", call.Name, "id", call.ID, "content", output.Content)
	}
	d.metrics.RecordToolDispatch(call.Name, status, time.Since(start).Seconds())

	return Outcome{
		Result:   result,
		Finished: !output.IsError && d.registry.IsFinishingTool(call.Name),
	}
}

// execute runs the tool, turning a panic into an error.
func (d *Dispatcher) execute(ctx context.Context, tool llm.Tool, call llm.ToolCall) (output llm.ToolOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool panicked", "tool", call.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return tool.Execute(ctx, args)
}

// awaitApprovals polls the gate until nothing is pending. It returns a note
// for the tool result describing what happened while waiting (review
// outcomes or a timeout), and an error only when ctx is cancelled.
func (d *Dispatcher) awaitApprovals(ctx context.Context, call llm.ToolCall, notify func(llm.Chunk)) (string, error) {
	if d.gate == nil || !d.gate.HasPendingApprovals() {
		return d.decisionNote(), nil
	}

	start := time.Now()
	notify(llm.TextChunk(fmt.Sprintf("\nWaiting for pending file changes to be reviewed before running %s...\n", call.Name)))
	slog.Info("waiting for approvals", "tool", call.Name, "timeout", d.timeout)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(d.timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			d.metrics.RecordApprovalWait("cancelled", time.Since(start).Seconds())
			return "", ctx.Err()
		case <-deadline.C:
			d.metrics.RecordApprovalWait("timeout", time.Since(start).Seconds())
			slog.Warn("approval wait timed out; proceeding", "tool", call.Name, "waited", d.timeout)
			note := fmt.Sprintf("Note: waited %s for pending file changes to be reviewed; ran anyway with changes still pending.", d.timeout)
			if decisions := d.decisionNote(); decisions != "" {
				note += "\n" + decisions
			}
			return note, nil
		case <-ticker.C:
			if !d.gate.HasPendingApprovals() {
				d.metrics.RecordApprovalWait("resolved", time.Since(start).Seconds())
				return d.decisionNote(), nil
			}
		}
	}
}

// decisionNote summarizes review outcomes reported by the gate, if it
// reports them.
func (d *Dispatcher) decisionNote() string {
	reporter, ok := d.gate.(DecisionReporter)
	if !ok {
		return ""
	}
	decisions := reporter.TakeDecisions()
	if len(decisions) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Note: file change reviews since the last check:")
	for _, dec := range decisions {
		verdict := "rejected"
		if dec.Accepted {
			verdict = "accepted"
		}
		fmt.Fprintf(&sb, "\n- %s %s", dec.Path, verdict)
	}
	return sb.String()
}

func errorResult(call llm.ToolCall, content string, kind llm.ErrorKind) llm.ToolResult {
	return llm.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: content,
		IsError: true,
		Kind:    kind,
	}
}

func withNotes(content string, notes []string) string {
	if len(notes) == 0 {
		return content
	}
	return content + "\n\n" + strings.Join(notes, "\n")
}
