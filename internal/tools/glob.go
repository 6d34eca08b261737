package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samsaffron/conductor/internal/llm"
)

// ListFilesTool implements list_files.
type ListFilesTool struct {
	workDir string
	limits  OutputLimits
}

func NewListFilesTool(workDir string, limits OutputLimits) *ListFilesTool {
	return &ListFilesTool{workDir: workDir, limits: limits}
}

// ListFilesArgs are the arguments for list_files.
type ListFilesArgs struct {
	Dir     string `json:"dir,omitempty"`
	Path    string `json:"path,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

func (a ListFilesArgs) dir() string {
	if a.Dir != "" {
		return a.Dir
	}
	if a.Path != "" {
		return a.Path
	}
	return "."
}

func (t *ListFilesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ListFilesToolName,
		Description: "List files in a directory. Directories end with '/'. Use pattern (supports **) for recursive listing, e.g. '**/*.go'.",
		Schema: objectSchema(map[string]interface{}{
			"dir":     stringSchema("Directory to list, relative to the workspace (default: workspace root)"),
			"pattern": stringSchema("Glob pattern relative to dir (default: '*', the directory's direct entries)"),
		}),
	}
}

func (t *ListFilesTool) Preview(args json.RawMessage) string {
	var a ListFilesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	if a.Pattern != "" {
		return fmt.Sprintf("%s in %s", a.Pattern, a.dir())
	}
	return a.dir()
}

func (t *ListFilesTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a ListFilesArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
		}
	}
	pattern := a.Pattern
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return errorOutput(NewToolErrorf(ErrInvalidParams, "invalid pattern %q", pattern)), nil
	}

	base, err := resolvePath(t.workDir, a.dir())
	if err != nil {
		return errorOutput(NewToolErrorf(ErrInvalidParams, "cannot resolve path: %v", err)), nil
	}
	info, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return errorOutput(NewToolError(ErrFileNotFound, a.dir())), nil
		}
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "stat: %v", err)), nil
	}
	if !info.IsDir() {
		return errorOutput(NewToolErrorf(ErrInvalidParams, "%s is not a directory", a.dir())), nil
	}

	maxResults := t.limits.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultOutputLimits().MaxResults
	}

	var files []string
	truncated := false
	err = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || path == base {
			return nil
		}
		// Skip hidden entries
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		matched, _ := doublestar.Match(pattern, rel)
		if matched {
			if len(files) >= maxResults {
				truncated = true
				return filepath.SkipAll
			}
			if d.IsDir() {
				rel += "/"
			}
			files = append(files, rel)
		}
		// Don't descend into directories the pattern can never reach.
		if d.IsDir() && !strings.Contains(pattern, "**") && strings.Count(rel, "/") >= strings.Count(pattern, "/") {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "walk error: %v", err)), nil
	}

	sort.Strings(files)
	if files == nil {
		files = []string{}
	}
	return jsonOutput(map[string]any{
		"dir":       a.dir(),
		"files":     files,
		"truncated": truncated,
	}), nil
}
