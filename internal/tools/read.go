package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/samsaffron/conductor/internal/llm"
)

const defaultPeekLines = 40

// ReadFileTool implements the read_file tool.
type ReadFileTool struct {
	workDir string
	limits  OutputLimits
}

// NewReadFileTool creates a new ReadFileTool.
func NewReadFileTool(workDir string, limits OutputLimits) *ReadFileTool {
	return &ReadFileTool{workDir: workDir, limits: limits}
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	pathArgs
	StartLine int `json:"start_line,omitempty"`
	EndLine   int `json:"end_line,omitempty"`
}

type readFileResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	LineCount int    `json:"lineCount"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (t *ReadFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read file contents. Use start_line/end_line (1-indexed, inclusive) to read a range of a large file.",
		Schema: objectSchema(map[string]interface{}{
			"path":       stringSchema("Path to the file, relative to the workspace"),
			"start_line": integerSchema("1-indexed start line (default: 1)"),
			"end_line":   integerSchema("1-indexed end line (default: EOF)"),
		}, "path"),
	}
}

func (t *ReadFileTool) Preview(args json.RawMessage) string {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil || a.path() == "" {
		return ""
	}
	if a.StartLine > 0 && a.EndLine > 0 {
		return fmt.Sprintf("%s:%d-%d", a.path(), a.StartLine, a.EndLine)
	} else if a.StartLine > 0 {
		return fmt.Sprintf("%s:%d-", a.path(), a.StartLine)
	}
	return a.path()
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a ReadFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.path() == "" {
		return errorOutput(NewToolError(ErrInvalidParams, "path is required")), nil
	}

	lines, toolErr := readTextLines(t.workDir, a.path())
	if toolErr != nil {
		return errorOutput(toolErr), nil
	}
	totalLines := len(lines)

	start := 0
	if a.StartLine > 0 {
		start = a.StartLine - 1
	}
	if start >= totalLines && totalLines > 0 {
		return errorOutput(NewToolErrorf(ErrInvalidParams, "start_line %d exceeds file length %d", a.StartLine, totalLines)), nil
	}
	end := totalLines
	if a.EndLine > 0 && a.EndLine < totalLines {
		end = a.EndLine
	}
	if start > end {
		start = end
	}

	selected := lines[start:end]
	truncated := false
	if t.limits.MaxLines > 0 && len(selected) > t.limits.MaxLines {
		selected = selected[:t.limits.MaxLines]
		truncated = true
	}
	content := strings.Join(selected, "\n")
	if t.limits.MaxBytes > 0 && int64(len(content)) > t.limits.MaxBytes {
		content = content[:t.limits.MaxBytes]
		truncated = true
	}

	result := readFileResult{
		Path:      a.path(),
		Content:   content,
		LineCount: totalLines,
		Truncated: truncated,
	}
	if a.StartLine > 0 || a.EndLine > 0 {
		result.StartLine = start + 1
		result.EndLine = start + len(selected)
	}
	return jsonOutput(result), nil
}

// PeekFileTool implements peek_file: the first lines of a file plus its
// length, for deciding whether a full read is worth it.
type PeekFileTool struct {
	workDir string
}

func NewPeekFileTool(workDir string) *PeekFileTool {
	return &PeekFileTool{workDir: workDir}
}

type PeekFileArgs struct {
	pathArgs
	Lines int `json:"lines,omitempty"`
}

func (t *PeekFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        PeekFileToolName,
		Description: "Show the first lines of a file and its total line count.",
		Schema: objectSchema(map[string]interface{}{
			"path":  stringSchema("Path to the file, relative to the workspace"),
			"lines": integerSchema(fmt.Sprintf("Number of lines to show (default: %d)", defaultPeekLines)),
		}, "path"),
	}
}

func (t *PeekFileTool) Preview(args json.RawMessage) string {
	var a PeekFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return a.path()
}

func (t *PeekFileTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a PeekFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.path() == "" {
		return errorOutput(NewToolError(ErrInvalidParams, "path is required")), nil
	}
	n := a.Lines
	if n <= 0 {
		n = defaultPeekLines
	}

	lines, toolErr := readTextLines(t.workDir, a.path())
	if toolErr != nil {
		return errorOutput(toolErr), nil
	}
	head := lines
	if len(head) > n {
		head = head[:n]
	}
	return jsonOutput(map[string]any{
		"path":      a.path(),
		"head":      strings.Join(head, "\n"),
		"lineCount": len(lines),
	}), nil
}

func readTextLines(workDir, path string) ([]string, *ToolError) {
	absPath, err := resolvePath(workDir, path)
	if err != nil {
		return nil, NewToolErrorf(ErrInvalidParams, "cannot resolve path: %v", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewToolError(ErrFileNotFound, path)
		}
		return nil, NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	if isBinaryContent(data) {
		return nil, NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", path)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), nil
}

// isBinaryContent detects if content is binary using http.DetectContentType.
func isBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	// Check first 512 bytes
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}

	contentType := http.DetectContentType(sample)
	if strings.HasPrefix(contentType, "text/") {
		return false
	}
	if strings.Contains(contentType, "json") || strings.Contains(contentType, "xml") {
		return false
	}

	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
