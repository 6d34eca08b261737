package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/samsaffron/conductor/internal/llm"
)

// WriteFileTool implements write_file. It never touches the file: the
// change goes to the approval gate and the call returns "pending".
type WriteFileTool struct {
	workDir string
	gate    ApprovalGate
	limits  OutputLimits
}

// NewWriteFileTool creates a new WriteFileTool.
func NewWriteFileTool(workDir string, gate ApprovalGate, limits OutputLimits) *WriteFileTool {
	return &WriteFileTool{workDir: workDir, gate: gate, limits: limits}
}

// WriteFileArgs are the arguments for write_file.
type WriteFileArgs struct {
	pathArgs
	Content string `json:"content"`
}

type writeFileResult struct {
	Status          string `json:"status"`
	ChangeID        string `json:"changeId"`
	Path            string `json:"path"`
	IsNew           bool   `json:"isNew"`
	OriginalContent string `json:"originalContent"`
	Content         string `json:"content"`
	Note            string `json:"note"`
}

func (t *WriteFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Propose creating or overwriting a file with the given full content. The change is queued for review; the result status is \"pending\" and you can continue with other work.",
		Schema: objectSchema(map[string]interface{}{
			"path":    stringSchema("Path to the file, relative to the workspace"),
			"content": stringSchema("Full file content to write"),
		}, "path", "content"),
	}
}

func (t *WriteFileTool) Preview(args json.RawMessage) string {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return a.path()
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a WriteFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.path() == "" {
		return errorOutput(NewToolError(ErrInvalidParams, "path is required")), nil
	}
	if t.gate == nil {
		return errorOutput(NewToolError(ErrNotConfigured, "no approval gate is configured for file writes")), nil
	}

	absPath, err := resolvePath(t.workDir, a.path())
	if err != nil {
		return errorOutput(NewToolErrorf(ErrInvalidParams, "cannot resolve path: %v", err)), nil
	}

	change := ProposedChange{Path: absPath, Proposed: a.Content}
	if data, err := os.ReadFile(absPath); err == nil {
		change.Original = string(data)
		change.Exists = true
	} else if !os.IsNotExist(err) {
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "read existing file: %v", err)), nil
	}

	id, err := t.gate.Submit(change)
	if err != nil {
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "queue change: %v", err)), nil
	}
	if state := SessionFrom(ctx); state != nil {
		recorded := a.path()
		if t.workDir != "" {
			recorded = RelativeToWorkDir(absPath, t.workDir)
		}
		state.AddFile(recorded)
	}

	return jsonOutput(writeFileResult{
		Status:          "pending",
		ChangeID:        id,
		Path:            a.path(),
		IsNew:           !change.Exists,
		OriginalContent: truncateBytes(change.Original, t.limits.MaxBytes),
		Content:         truncateBytes(a.Content, t.limits.MaxBytes),
		Note:            describeChange(change),
	}), nil
}

func describeChange(c ProposedChange) string {
	if !c.Exists {
		return "new file with " + pluralLines(countLines(c.Proposed)) + "; awaiting review"
	}
	return pluralLines(countLines(c.Original)) + " -> " + pluralLines(countLines(c.Proposed)) + "; awaiting review"
}

func pluralLines(n int) string {
	if n == 1 {
		return "1 line"
	}
	return fmt.Sprintf("%d lines", n)
}

// countLines counts the number of lines in a string.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	count := strings.Count(s, "\n")
	// Add 1 if doesn't end with newline
	if !strings.HasSuffix(s, "\n") {
		count++
	}
	return count
}

func truncateBytes(s string, max int64) string {
	if max <= 0 || int64(len(s)) <= max {
		return s
	}
	n := int(max)
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n[truncated]"
}

// PartialWriteArgs extracts path and content from write_file arguments that
// may have been cut off mid-stream. Whatever prefix of content arrived is
// returned.
func PartialWriteArgs(raw json.RawMessage) (path, content string) {
	var a WriteFileArgs
	if err := json.Unmarshal(raw, &a); err == nil {
		return a.path(), a.Content
	}
	return partialJSONString(raw, "path"), partialJSONString(raw, "content")
}

// partialJSONString reads the string value of key from possibly truncated
// JSON, stopping at the closing quote or the end of input.
func partialJSONString(raw []byte, key string) string {
	s := string(raw)
	i := strings.Index(s, `"`+key+`"`)
	if i < 0 {
		return ""
	}
	rest := strings.TrimLeft(s[i+len(key)+2:], " \t\r\n")
	if !strings.HasPrefix(rest, ":") {
		return ""
	}
	rest = strings.TrimLeft(rest[1:], " \t\r\n")
	if !strings.HasPrefix(rest, `"`) {
		return ""
	}
	rest = rest[1:]

	end := len(rest)
	for j := 0; j < len(rest); j++ {
		if rest[j] == '\\' {
			j++
			continue
		}
		if rest[j] == '"' {
			end = j
			break
		}
	}
	body := rest[:end]
	// Drop a dangling escape cut off by truncation.
	for k := len(body) - 1; k >= 0 && k >= len(body)-6; k-- {
		if body[k] == '\\' {
			var out string
			if json.Unmarshal([]byte(`"`+body+`"`), &out) != nil {
				body = body[:k]
			}
			break
		}
	}
	var out string
	if err := json.Unmarshal([]byte(`"`+body+`"`), &out); err != nil {
		return body
	}
	return out
}
