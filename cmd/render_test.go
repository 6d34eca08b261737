package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/samsaffron/conductor/internal/engine"
	"github.com/samsaffron/conductor/internal/llm"
	"github.com/samsaffron/conductor/internal/loop"
)

func TestChunkRendererBreaksLinesAroundTools(t *testing.T) {
	var buf bytes.Buffer
	r := newChunkRenderer(&buf, nil, func(llm.ToolCall) string { return "(main.go)" })

	call := llm.ToolCall{ID: "c1", Name: "read_file", Arguments: json.RawMessage(`{"path":"main.go"}`)}
	r.Render(llm.TextChunk("Let me look"))
	r.Render(llm.CallChunk(call))
	r.Render(llm.ResultChunk(llm.ToolResult{ID: "c1", Name: "read_file", Content: "a\nb\nc"}))
	r.Render(llm.TextChunk("Done."))
	r.Render(llm.DoneChunk())

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), out)
	}
	if lines[0] != "Let me look" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "read_file") || !strings.Contains(lines[1], "(main.go)") {
		t.Errorf("call line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "(3 lines)") {
		t.Errorf("result line = %q", lines[2])
	}
	if !strings.HasSuffix(out, "Done.\n") {
		t.Errorf("done should end the line: %q", out)
	}
}

func TestChunkRendererErrorsAndContinuations(t *testing.T) {
	var buf bytes.Buffer
	r := newChunkRenderer(&buf, nil, nil)

	r.Render(llm.ContinuationChunk("CONTEXT_EXHAUSTED: continuing in a fresh session (1/10)"))
	r.Render(llm.ResultChunk(llm.ToolResult{Name: "execute_command", Content: "exit status 2\nmore", IsError: true}))
	r.Render(llm.ErrorChunk(&llm.ProviderError{Kind: llm.KindRateLimit, Cause: errors.New("slow down")}))

	out := buf.String()
	for _, want := range []string{"fresh session (1/10)", "execute_command", "exit status 2", "RATE_LIMIT"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
	if strings.Contains(out, "more") {
		t.Errorf("error results should show only the first line: %q", out)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, engine.Result{
		Reason:        engine.StopCompleted,
		Iterations:    12,
		Continuations: 1,
		Snapshot: loop.Snapshot{Tasks: []loop.Task{
			{Status: loop.TaskCompleted},
			{Status: loop.TaskPending},
		}},
	})
	out := buf.String()
	for _, want := range []string{"completed after 12 iterations", "1 continuations", "1 of 2 tasks done"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q: %q", want, out)
		}
	}
}

func TestFormatTokens(t *testing.T) {
	tests := map[int]string{
		512:       "512",
		8_192:     "8K",
		200_000:   "200K",
		1_048_576: "1.0M",
	}
	for n, want := range tests {
		if got := formatTokens(n); got != want {
			t.Errorf("formatTokens(%d) = %q, want %q", n, got, want)
		}
	}
}
