package input

import (
	"fmt"
	"strconv"
	"strings"
)

// LineRange selects lines of an attached file. Both ends are 1-based and
// inclusive; zero leaves that end open.
type LineRange struct {
	Start int
	End   int
}

// Apply returns the selected lines of content.
func (r LineRange) Apply(content string) string {
	lines := strings.Split(content, "\n")
	start := 0
	if r.Start > 0 {
		start = r.Start - 1
	}
	end := len(lines)
	if r.End > 0 && r.End < end {
		end = r.End
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// String renders the range the way it is written on the command line.
func (r LineRange) String() string {
	var b strings.Builder
	if r.Start > 0 {
		b.WriteString(strconv.Itoa(r.Start))
	}
	if r.Start == 0 || r.End != r.Start {
		b.WriteByte('-')
		if r.End > 0 {
			b.WriteString(strconv.Itoa(r.End))
		}
	}
	return b.String()
}

// FileSpec is one --file argument: a path or glob, optionally narrowed to
// a line range.
type FileSpec struct {
	Path  string
	Lines *LineRange // nil for the whole file
}

// ParseFileSpec splits "path[:range]" where range is N, N-M, N- or -M.
// Anything after the last colon that is not a range stays in the path, so
// "notes:draft" and "C:\src" are plain paths.
func ParseFileSpec(spec string) (FileSpec, error) {
	if strings.TrimSpace(spec) == "" {
		return FileSpec{}, fmt.Errorf("empty file spec")
	}
	i := strings.LastIndexByte(spec, ':')
	if i <= 0 || !looksLikeRange(spec[i+1:]) {
		return FileSpec{Path: spec}, nil
	}
	r, err := parseLineRange(spec[i+1:])
	if err != nil {
		return FileSpec{}, err
	}
	return FileSpec{Path: spec[:i], Lines: &r}, nil
}

func looksLikeRange(s string) bool {
	return s != "" && strings.Trim(s, "0123456789-") == "" && strings.Count(s, "-") <= 1
}

func parseLineRange(s string) (LineRange, error) {
	startText, endText, isRange := strings.Cut(s, "-")
	start, err := lineNumber(startText)
	if err != nil {
		return LineRange{}, err
	}
	if !isRange {
		if start == 0 {
			return LineRange{}, fmt.Errorf("line numbers start at 1")
		}
		return LineRange{Start: start, End: start}, nil
	}
	end, err := lineNumber(endText)
	if err != nil {
		return LineRange{}, err
	}
	if end > 0 && start > end {
		return LineRange{}, fmt.Errorf("start line %d is after end line %d", start, end)
	}
	return LineRange{Start: start, End: end}, nil
}

func lineNumber(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid line number %q", s)
	}
	return n, nil
}
