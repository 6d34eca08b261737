// Package tools provides the tool registry, the built-in tools and the
// dispatcher that runs model-requested calls behind the approval gate.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/samsaffron/conductor/internal/llm"
)

// ToolErrorType provides structured errors the model can react to.
type ToolErrorType string

const (
	ErrFileNotFound     ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams    ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed  ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied ToolErrorType = "PERMISSION_DENIED"
	ErrBinaryFile       ToolErrorType = "BINARY_FILE"
	ErrTimeout          ToolErrorType = "TIMEOUT"
	ErrUnknownTool      ToolErrorType = "UNKNOWN_TOOL"
	ErrNotConfigured    ToolErrorType = "NOT_CONFIGURED"
)

// ToolError provides structured error information for retry logic.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// formatToolError formats a ToolError for LLM consumption.
func formatToolError(err *ToolError) string {
	return fmt.Sprintf("Error [%s]: %s", err.Type, err.Message)
}

func errorOutput(err *ToolError) llm.ToolOutput {
	return llm.ErrorOutput(formatToolError(err))
}

// jsonOutput encodes a structured result for the model.
func jsonOutput(v any) llm.ToolOutput {
	data, err := json.Marshal(v)
	if err != nil {
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "encode result: %v", err))
	}
	return llm.TextOutput(string(data))
}

// Tool names
const (
	ReadFileToolName       = "read_file"
	PeekFileToolName       = "peek_file"
	WriteFileToolName      = "write_file"
	ListFilesToolName      = "list_files"
	SearchCodeToolName     = "search_code"
	CreatePlanToolName     = "create_plan"
	UpdateTaskToolName     = "update_task"
	TaskCompleteToolName   = "task_complete"
	ExecuteCommandToolName = "execute_command"
	RunTestsToolName       = "run_tests"
	WebSearchToolName      = "web_search"
)

// AllToolNames returns all built-in tool names.
func AllToolNames() []string {
	return []string{
		ReadFileToolName,
		PeekFileToolName,
		WriteFileToolName,
		ListFilesToolName,
		SearchCodeToolName,
		CreatePlanToolName,
		UpdateTaskToolName,
		TaskCompleteToolName,
		ExecuteCommandToolName,
		RunTestsToolName,
		WebSearchToolName,
	}
}

// FinishingTool is implemented by tools whose successful call ends the
// session as Completed.
type FinishingTool interface {
	IsFinishingTool() bool
}

// DependentTool is implemented by tools that must not run while file
// changes are awaiting review, because their outcome depends on them.
type DependentTool interface {
	WaitsForApprovals() bool
}

// pathArgs accepts both "path" and "file_path" spellings.
type pathArgs struct {
	Path     string `json:"path"`
	FilePath string `json:"file_path"`
}

func (a pathArgs) path() string {
	if a.Path != "" {
		return a.Path
	}
	return a.FilePath
}

func stringSchema(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func integerSchema(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
