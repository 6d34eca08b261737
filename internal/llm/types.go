package llm

import (
	"context"
	"encoding/json"
)

// Provider streams model output for a request.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
	// ListModels returns static metadata for the models this backend serves.
	ListModels() []ModelInfo
}

// Stream yields chunks until io.EOF. The last chunk before io.EOF is always
// ChunkDone.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Request represents a single model turn.
type Request struct {
	Model           string
	Credential      string // API key override; empty uses the provider default
	System          string
	Messages        []Message
	Tools           []ToolSpec
	MaxOutputTokens int
	Temperature     float32
	Debug           bool
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message holds a role with structured parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Part represents a single content part.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the output from executing a tool call.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool      // True if this result represents a structured error
	Kind    ErrorKind // TOOL_EXECUTION or UNKNOWN_TOOL when IsError
}

// ModelInfo is static metadata for a model served by a provider.
type ModelInfo struct {
	ID            string `json:"id" yaml:"id"`
	DisplayName   string `json:"display_name" yaml:"display_name"`
	ContextWindow int    `json:"context_window" yaml:"context_window"`
	OutputCeiling int    `json:"output_ceiling" yaml:"output_ceiling"`
	RateLimit     string `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

func SystemText(text string) Message {
	return Message{
		Role:  RoleSystem,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func UserText(text string) Message {
	return Message{
		Role:  RoleUser,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func AssistantText(text string) Message {
	return Message{
		Role:  RoleAssistant,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

// AssistantTurn builds the assistant message for one iteration: the streamed
// text followed by the tool calls in the order they were emitted.
func AssistantTurn(text string, calls []ToolCall) Message {
	msg := Message{Role: RoleAssistant}
	if text != "" {
		msg.Parts = append(msg.Parts, Part{Type: PartText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		msg.Parts = append(msg.Parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return msg
}

func ToolResultMessage(result ToolResult) Message {
	return Message{
		Role:  RoleTool,
		Parts: []Part{{Type: PartToolResult, ToolResult: &result}},
	}
}

// MessageText concatenates the text parts of a message.
func MessageText(msg Message) string {
	var text string
	for _, part := range msg.Parts {
		if part.Type == PartText {
			text += part.Text
		}
	}
	return text
}
