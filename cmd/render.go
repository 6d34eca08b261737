package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/samsaffron/conductor/internal/llm"
)

var (
	toolStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	successMarker = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓")
	failureMarker = errorStyle.Render("✗")
)

// chunkRenderer prints engine output for a terminal. It shares term with
// the approval reviewer so prompts and streamed text do not interleave.
type chunkRenderer struct {
	out     io.Writer
	term    *sync.Mutex
	preview func(llm.ToolCall) string
	// midLine is true when the last write did not end in a newline.
	midLine bool
}

func newChunkRenderer(out io.Writer, term *sync.Mutex, preview func(llm.ToolCall) string) *chunkRenderer {
	if term == nil {
		term = &sync.Mutex{}
	}
	return &chunkRenderer{out: out, term: term, preview: preview}
}

func (r *chunkRenderer) Render(c llm.Chunk) {
	r.term.Lock()
	defer r.term.Unlock()

	switch c.Type {
	case llm.ChunkText:
		if c.Text == "" {
			return
		}
		fmt.Fprint(r.out, c.Text)
		r.midLine = !strings.HasSuffix(c.Text, "\n")
	case llm.ChunkFunctionCall:
		preview := ""
		if r.preview != nil {
			preview = r.preview(*c.Call)
		}
		r.line(toolStyle.Render("→ "+c.Call.Name) + " " + mutedStyle.Render(preview))
	case llm.ChunkFunctionResult:
		r.line(describeResult(*c.Result))
	case llm.ChunkContinuation:
		r.line(noticeStyle.Render("↻ " + c.Text))
	case llm.ChunkError:
		r.line(errorStyle.Render(fmt.Sprintf("error [%s]: %v", c.Kind(), c.Err)))
	case llm.ChunkDone:
		if r.midLine {
			fmt.Fprintln(r.out)
			r.midLine = false
		}
	}
}

// line writes s on a line of its own.
func (r *chunkRenderer) line(s string) {
	if r.midLine {
		fmt.Fprintln(r.out)
	}
	fmt.Fprintln(r.out, strings.TrimRight(s, " "))
	r.midLine = false
}

func describeResult(res llm.ToolResult) string {
	if res.IsError {
		first, _, _ := strings.Cut(strings.TrimSpace(res.Content), "\n")
		return failureMarker + " " + res.Name + mutedStyle.Render(": "+first)
	}
	lines := strings.Count(res.Content, "\n")
	if res.Content != "" && !strings.HasSuffix(res.Content, "\n") {
		lines++
	}
	return successMarker + " " + res.Name + mutedStyle.Render(fmt.Sprintf(" (%d lines)", lines))
}
