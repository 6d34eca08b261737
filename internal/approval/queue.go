// Package approval holds proposed file changes until an operator accepts or
// rejects them. Queue implements tools.ApprovalGate.
package approval

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samsaffron/conductor/internal/tools"
	diff "github.com/shogoki/gotextdiff"
)

var (
	ErrNotFound = errors.New("no pending change with that id")
	// ErrStale means the file changed on disk after the change was proposed.
	ErrStale = errors.New("file changed since the change was proposed")
)

// Change is a proposed change waiting for review.
type Change struct {
	ID string
	tools.ProposedChange
	Submitted time.Time
}

// Diff returns a unified diff of the change, or "" when it is a no-op.
func (c Change) Diff() string {
	if c.Original == c.Proposed && c.Exists {
		return ""
	}
	return string(diff.Diff(c.Path, []byte(c.Original), c.Path, []byte(c.Proposed)))
}

// Queue is an in-memory approval gate.
type Queue struct {
	mu          sync.Mutex
	pending     []*Change
	decisions   []tools.Decision
	autoApprove bool
	notify      chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithAutoApprove applies every change as soon as it is submitted.
func WithAutoApprove(auto bool) Option {
	return func(q *Queue) { q.autoApprove = auto }
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{notify: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit queues a change. A newer change to a path that already has one
// pending supersedes it, keeping the original content of the first.
func (q *Queue) Submit(change tools.ProposedChange) (string, error) {
	if change.Path == "" {
		return "", fmt.Errorf("change has no path")
	}
	c := &Change{ID: uuid.NewString(), ProposedChange: change, Submitted: time.Now()}

	if q.autoApprove {
		if err := applyChange(c.ProposedChange); err != nil {
			return "", err
		}
		q.record(c, true)
		return c.ID, nil
	}

	q.mu.Lock()
	for i, p := range q.pending {
		if p.Path == change.Path {
			c.Original, c.Exists = p.Original, p.Exists
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			slog.Debug("superseded pending change", "path", change.Path, "old", p.ID, "new", c.ID)
			break
		}
	}
	q.pending = append(q.pending, c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return c.ID, nil
}

// HasPendingApprovals reports whether any change awaits review.
func (q *Queue) HasPendingApprovals() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) > 0
}

// Submitted is signalled after changes are queued. One signal may stand for
// several submissions.
func (q *Queue) Submitted() <-chan struct{} {
	return q.notify
}

// Pending returns the pending changes in submission order.
func (q *Queue) Pending() []Change {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Change, 0, len(q.pending))
	for _, c := range q.pending {
		out = append(out, *c)
	}
	return out
}

// Accept applies the change and removes it from the queue. A stale change
// stays queued so the operator can reject it.
func (q *Queue) Accept(id string) error {
	c, err := q.find(id)
	if err != nil {
		return err
	}
	if err := checkUnchanged(c.ProposedChange); err != nil {
		return err
	}
	if err := applyChange(c.ProposedChange); err != nil {
		return err
	}
	q.remove(id)
	q.record(c, true)
	return nil
}

// Reject discards the change.
func (q *Queue) Reject(id string) error {
	c, err := q.find(id)
	if err != nil {
		return err
	}
	q.remove(id)
	q.record(c, false)
	return nil
}

// RejectAll discards every pending change.
func (q *Queue) RejectAll() {
	for _, c := range q.Pending() {
		_ = q.Reject(c.ID)
	}
}

// TakeDecisions returns the review outcomes since the last call.
func (q *Queue) TakeDecisions() []tools.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()
	d := q.decisions
	q.decisions = nil
	return d
}

func (q *Queue) find(id string) (*Change, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.pending {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, c := range q.pending {
		if c.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

func (q *Queue) record(c *Change, accepted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.decisions = append(q.decisions, tools.Decision{ChangeID: c.ID, Path: c.Path, Accepted: accepted})
}

func checkUnchanged(c tools.ProposedChange) error {
	data, err := os.ReadFile(c.Path)
	switch {
	case os.IsNotExist(err):
		if c.Exists {
			return fmt.Errorf("%s: %w (deleted)", c.Path, ErrStale)
		}
		return nil
	case err != nil:
		return err
	case !c.Exists || string(data) != c.Original:
		return fmt.Errorf("%s: %w", c.Path, ErrStale)
	}
	return nil
}
