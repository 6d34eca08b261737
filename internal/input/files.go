// Package input gathers what the operator hands a request: the request text
// itself and any files attached to it.
package input

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/term"
)

// FileContent is one attached file, or a line range of it.
type FileContent struct {
	Path    string // display path, with ":start-end" when a range was given
	Content string
}

// ReadFiles reads the given file specs relative to root (the working
// directory when empty). A spec is a path, a doublestar glob ("pkg/**/*.go")
// or either with a line range ("main.go:11-22"). A glob that matches nothing
// is skipped; a literal path that does not exist is an error.
func ReadFiles(specs []string, root string) ([]FileContent, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}

	var result []FileContent
	seen := make(map[string]bool)
	for _, raw := range specs {
		spec, err := ParseFileSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid file spec %q: %w", raw, err)
		}

		matches, err := expand(root, expandHome(spec.Path))
		if err != nil {
			return nil, err
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %q: %w", spec.Path, err)
			}
			if info.IsDir() {
				continue
			}

			display := displayPath(root, match)
			if spec.Lines != nil {
				display += ":" + spec.Lines.String()
			}
			if seen[display] {
				continue
			}
			seen[display] = true

			data, err := os.ReadFile(match)
			if err != nil {
				return nil, fmt.Errorf("failed to read %q: %w", display, err)
			}
			content := string(data)
			if spec.Lines != nil {
				content = spec.Lines.Apply(content)
			}
			result = append(result, FileContent{Path: display, Content: content})
		}
	}
	return result, nil
}

// expand resolves pattern against root. Literal paths come back as-is so a
// missing file surfaces as a stat error.
func expand(root, pattern string) ([]string, error) {
	abs := pattern
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, pattern)
	}
	if !containsGlobChars(pattern) {
		return []string{abs}, nil
	}

	base, rel := doublestar.SplitPattern(filepath.ToSlash(abs))
	matches, err := doublestar.Glob(os.DirFS(filepath.FromSlash(base)), rel)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	for i, m := range matches {
		matches[i] = filepath.Join(filepath.FromSlash(base), filepath.FromSlash(m))
	}
	return matches, nil
}

func displayPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// FormatFiles renders attachments with prompt-safe delimiters.
func FormatFiles(files []FileContent) string {
	if len(files) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, f := range files {
		sb.WriteString("<<<<< FILE: ")
		sb.WriteString(f.Path)
		sb.WriteString(" >>>>>\n")
		sb.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("<<<<< END FILE >>>>>\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// WithAttachments prefixes request with the formatted files.
func WithAttachments(request string, files []FileContent) string {
	block := FormatFiles(files)
	if block == "" {
		return request
	}
	return block + "\n\n" + request
}

// ReadRequest joins args, or reads stdin when args are empty and stdin is
// not a terminal.
func ReadRequest(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if term.IsTerminal(int(stdin.Fd())) {
		return "", fmt.Errorf("no request given")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	request := strings.TrimSpace(string(data))
	if request == "" {
		return "", fmt.Errorf("no request given")
	}
	return request, nil
}

// expandHome expands a leading ~/ to the home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func containsGlobChars(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}
