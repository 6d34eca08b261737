// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/samsaffron/conductor/internal/llm"
)

// MockTool is a configurable llm.Tool. It records every call, so tests can
// assert on what the dispatcher or engine passed it.
type MockTool struct {
	SpecData  llm.ToolSpec
	ExecuteFn func(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error)
	PreviewFn func(args json.RawMessage) string

	mu    sync.Mutex
	calls []MockToolCall
}

// MockToolCall records one Execute.
type MockToolCall struct {
	Args   json.RawMessage
	Output llm.ToolOutput
	Err    error
}

func (m *MockTool) Spec() llm.ToolSpec {
	return m.SpecData
}

func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var out llm.ToolOutput
	var err error
	if m.ExecuteFn != nil {
		out, err = m.ExecuteFn(ctx, args)
	}
	m.mu.Lock()
	m.calls = append(m.calls, MockToolCall{Args: args, Output: out, Err: err})
	m.mu.Unlock()
	return out, err
}

func (m *MockTool) Preview(args json.RawMessage) string {
	if m.PreviewFn == nil {
		return ""
	}
	return m.PreviewFn(args)
}

// Calls returns a copy of the recorded calls.
func (m *MockTool) Calls() []MockToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockToolCall(nil), m.calls...)
}

func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastArgs returns the arguments of the latest call, or nil.
func (m *MockTool) LastArgs() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1].Args
}

// NewMockTool returns a tool that accepts any object and answers result.
func NewMockTool(name, result string) *MockTool {
	return NewMockToolWithSchema(name, "Mock tool: "+name, map[string]interface{}{"type": "object"},
		func(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
			return llm.TextOutput(result), nil
		})
}

// NewMockToolWithSchema creates a mock tool with a custom schema.
func NewMockToolWithSchema(name, description string, schema map[string]interface{}, executeFn func(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error)) *MockTool {
	return &MockTool{
		SpecData: llm.ToolSpec{
			Name:        name,
			Description: description,
			Schema:      schema,
		},
		ExecuteFn: executeFn,
	}
}

// NewFailingMockTool returns a tool whose every call reports content as a
// tool-level error.
func NewFailingMockTool(name, content string) *MockTool {
	return NewMockToolWithSchema(name, "Failing mock: "+name, map[string]interface{}{"type": "object"},
		func(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
			return llm.ToolOutput{Content: content, IsError: true}, nil
		})
}
