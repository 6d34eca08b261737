package approval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	diffAddStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	diffRemoveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	diffHunkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
)

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ConfirmFunc asks a yes/no question.
type ConfirmFunc func(title string) (bool, error)

// HuhConfirm prompts with a huh confirm form.
func HuhConfirm(title string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Accept").
				Negative("Reject").
				WithButtonAlignment(lipgloss.Left).
				Value(&ok),
		),
	).WithShowHelp(false).WithShowErrors(false)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// Reviewer walks an operator through pending changes.
type Reviewer struct {
	queue   *Queue
	out     io.Writer
	confirm ConfirmFunc
	// term serializes terminal use with whatever else writes to out.
	term *sync.Mutex
}

// NewReviewer creates a reviewer. confirm defaults to HuhConfirm and term
// may be nil.
func NewReviewer(q *Queue, out io.Writer, confirm ConfirmFunc, term *sync.Mutex) *Reviewer {
	if confirm == nil {
		confirm = HuhConfirm
	}
	if term == nil {
		term = &sync.Mutex{}
	}
	return &Reviewer{queue: q, out: out, confirm: confirm, term: term}
}

// Run reviews changes as they are submitted until ctx is done.
func (r *Reviewer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.queue.Submitted():
			if err := r.ReviewPending(); err != nil {
				return err
			}
		}
	}
}

// ReviewPending prompts for every pending change. An aborted prompt
// rejects the remaining changes.
func (r *Reviewer) ReviewPending() error {
	r.term.Lock()
	defer r.term.Unlock()

	for _, c := range r.queue.Pending() {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, headerStyle.Render(describe(c)))
		fmt.Fprint(r.out, renderDiff(c.Diff()))

		ok, err := r.confirm(fmt.Sprintf("Apply changes to %s?", c.Path))
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				r.queue.RejectAll()
				fmt.Fprintln(r.out, diffRemoveStyle.Render("Review aborted; rejected remaining changes."))
				return nil
			}
			return err
		}
		if !ok {
			if err := r.queue.Reject(c.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			fmt.Fprintln(r.out, diffRemoveStyle.Render("Rejected "+c.Path))
			continue
		}
		if err := r.queue.Accept(c.ID); err != nil {
			if errors.Is(err, ErrStale) {
				_ = r.queue.Reject(c.ID)
				fmt.Fprintln(r.out, diffRemoveStyle.Render(err.Error()+"; rejected"))
				continue
			}
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		fmt.Fprintln(r.out, diffAddStyle.Render("Applied "+c.Path))
	}
	return nil
}

func describe(c Change) string {
	if !c.Exists {
		return "New file: " + c.Path
	}
	return "Edit: " + c.Path
}

// renderDiff colors a unified diff, dropping the file headers.
func renderDiff(d string) string {
	if d == "" {
		return ""
	}
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimSuffix(d, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "), strings.HasPrefix(line, "diff "):
			continue
		case strings.HasPrefix(line, "@@"):
			sb.WriteString(diffHunkStyle.Render(line))
		case strings.HasPrefix(line, "+"):
			sb.WriteString(diffAddStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			sb.WriteString(diffRemoveStyle.Render(line))
		default:
			sb.WriteString(line)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
