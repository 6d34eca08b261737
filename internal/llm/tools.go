package llm

import (
	"context"
	"encoding/json"
)

// Tool describes a callable external tool.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (ToolOutput, error)
	// Preview returns a short human-readable description of the call,
	// e.g. the path a read targets. Empty if none.
	Preview(args json.RawMessage) string
}

// ToolOutput is what a tool hands back to the dispatcher.
type ToolOutput struct {
	Content string
	IsError bool
}

// TextOutput wraps plain text as a successful tool output.
func TextOutput(content string) ToolOutput {
	return ToolOutput{Content: content}
}

// ErrorOutput wraps an error message as a failed tool output.
func ErrorOutput(content string) ToolOutput {
	return ToolOutput{Content: content, IsError: true}
}
