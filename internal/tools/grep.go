package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samsaffron/conductor/internal/llm"
)

// SearchCodeTool implements search_code: ripgrep when installed, otherwise
// a directory walk.
type SearchCodeTool struct {
	workDir string
	limits  OutputLimits
	useRg   bool
}

func NewSearchCodeTool(workDir string, limits OutputLimits) *SearchCodeTool {
	return &SearchCodeTool{workDir: workDir, limits: limits, useRg: ripgrepAvailable()}
}

// ripgrepAvailable checks if ripgrep (rg) is available.
func ripgrepAvailable() bool {
	_, err := exec.LookPath("rg")
	return err == nil
}

// SearchCodeArgs are the arguments for search_code.
type SearchCodeArgs struct {
	Term       string `json:"term"`
	Path       string `json:"path,omitempty"`
	Include    string `json:"include,omitempty"` // glob filter e.g., "*.go"
	Regex      bool   `json:"regex,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// CodeMatch is a single matching line.
type CodeMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *SearchCodeTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        SearchCodeToolName,
		Description: "Search file contents for a term. Set regex=true to treat the term as an RE2 regular expression.",
		Schema: objectSchema(map[string]interface{}{
			"term":        stringSchema("Text to search for"),
			"path":        stringSchema("File or directory to search (default: workspace root)"),
			"include":     stringSchema("Glob filter for file names, e.g. '*.go' or '*.{js,ts}'"),
			"regex":       map[string]interface{}{"type": "boolean", "description": "Interpret term as a regular expression"},
			"max_results": integerSchema("Maximum number of matches (default: 100)"),
		}, "term"),
	}
}

func (t *SearchCodeTool) Preview(args json.RawMessage) string {
	var a SearchCodeArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Term == "" {
		return ""
	}
	term := a.Term
	if len(term) > 30 {
		term = term[:27] + "..."
	}
	if a.Path != "" {
		return fmt.Sprintf("%q in %s", term, a.Path)
	}
	return strconv.Quote(term)
}

func (t *SearchCodeTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a SearchCodeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if a.Term == "" {
		return errorOutput(NewToolError(ErrInvalidParams, "term is required")), nil
	}
	if a.Include != "" && !doublestar.ValidatePattern(a.Include) {
		return errorOutput(NewToolErrorf(ErrInvalidParams, "invalid include pattern %q", a.Include)), nil
	}

	root, err := resolvePath(t.workDir, ".")
	if err != nil {
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "cannot resolve workspace: %v", err)), nil
	}
	searchPath := root
	if a.Path != "" {
		if searchPath, err = resolvePath(t.workDir, a.Path); err != nil {
			return errorOutput(NewToolErrorf(ErrInvalidParams, "cannot resolve path: %v", err)), nil
		}
	}

	maxResults := a.MaxResults
	if maxResults <= 0 || (t.limits.MaxResults > 0 && maxResults > t.limits.MaxResults) {
		maxResults = t.limits.MaxResults
	}
	if maxResults <= 0 {
		maxResults = DefaultOutputLimits().MaxResults
	}

	var matches []CodeMatch
	if t.useRg {
		matches, err = executeRipgrep(ctx, a, searchPath, maxResults)
	}
	if !t.useRg || (err != nil && ctx.Err() == nil) {
		// Fall back to the Go implementation on ripgrep error
		matches, err = walkSearch(ctx, a, searchPath, maxResults)
	}
	if err != nil {
		if ctx.Err() != nil {
			return errorOutput(NewToolError(ErrTimeout, "search timed out after 1 minute; try a more specific term or path")), nil
		}
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "search failed: %v", err)), nil
	}

	for i := range matches {
		if rel, err := filepath.Rel(root, matches[i].File); err == nil && !strings.HasPrefix(rel, "..") {
			matches[i].File = filepath.ToSlash(rel)
		}
	}
	if matches == nil {
		matches = []CodeMatch{}
	}
	return jsonOutput(map[string]any{
		"matches":   matches,
		"truncated": len(matches) >= maxResults,
	}), nil
}

// rgMessage represents one line of ripgrep --json output.
type rgMessage struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
	} `json:"data"`
}

func executeRipgrep(ctx context.Context, a SearchCodeArgs, searchPath string, maxResults int) ([]CodeMatch, error) {
	args := []string{
		"--json",
		"--max-count", strconv.Itoa(maxResults), // Limit per file
		"--glob", "!.git",
	}
	if !a.Regex {
		args = append(args, "--fixed-strings")
	}
	if a.Include != "" {
		args = append(args, "--glob", a.Include)
	}
	args = append(args, "--", a.Term, searchPath)

	output, err := exec.CommandContext(ctx, "rg", args...).Output()
	if err != nil {
		// Exit code 1 means no matches, which is not an error
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	return parseRipgrepOutput(output, maxResults), nil
}

func parseRipgrepOutput(output []byte, maxResults int) []CodeMatch {
	var matches []CodeMatch
	for _, line := range strings.Split(string(output), "\n") {
		if line == "" {
			continue
		}
		var msg rgMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Type != "match" {
			continue
		}
		matches = append(matches, CodeMatch{
			File: msg.Data.Path.Text,
			Line: msg.Data.LineNumber,
			Text: strings.TrimRight(msg.Data.Lines.Text, "\r\n"),
		})
		if len(matches) >= maxResults {
			break
		}
	}
	return matches
}

func walkSearch(ctx context.Context, a SearchCodeArgs, searchPath string, maxResults int) ([]CodeMatch, error) {
	pattern := a.Term
	if !a.Regex {
		pattern = regexp.QuoteMeta(pattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	info, err := os.Stat(searchPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return searchFile(searchPath, re, maxResults)
	}

	var matches []CodeMatch
	err = filepath.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil // Skip errors
		}
		if d.IsDir() {
			if path != searchPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if a.Include != "" {
			if ok, _ := doublestar.Match(a.Include, d.Name()); !ok {
				return nil
			}
		}
		found, err := searchFile(path, re, maxResults-len(matches))
		if err != nil {
			return nil // Skip files that can't be read
		}
		matches = append(matches, found...)
		if len(matches) >= maxResults {
			return filepath.SkipAll
		}
		return nil
	})
	return matches, err
}

// searchFile searches a single text file for matching lines.
func searchFile(path string, re *regexp.Regexp, maxMatches int) ([]CodeMatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	if isBinaryContent(buf[:n]) {
		return nil, fmt.Errorf("binary file")
	}
	if _, err := file.Seek(0, 0); err != nil {
		return nil, err
	}

	var matches []CodeMatch
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if re.MatchString(scanner.Text()) {
			matches = append(matches, CodeMatch{File: path, Line: lineNum, Text: scanner.Text()})
			if len(matches) >= maxMatches {
				break
			}
		}
	}
	return matches, scanner.Err()
}
