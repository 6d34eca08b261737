// Package loop holds the per-session iteration state machine and the
// progress state that survives a continuation.
package loop

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxIterations bounds one session's request/response round trips.
const DefaultMaxIterations = 30

// ErrNotActive is returned when an iteration is started outside the Active state.
var ErrNotActive = errors.New("loop: session is not active")

// Phase is the controller's coarse state.
type Phase int

const (
	Idle Phase = iota
	Active
	Completed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is a point-in-time copy of the controller.
type State struct {
	Iteration int
	Active    bool
	Completed bool
	Ceiling   int
}

// Phase derives the coarse state from the flags.
func (s State) Phase() Phase {
	switch {
	case s.Completed:
		return Completed
	case s.Active:
		return Active
	default:
		return Idle
	}
}

// Controller governs how many iterations a session may run and when it is
// done. It is safe for concurrent use; a session's iterations themselves
// run sequentially.
type Controller struct {
	mu        sync.Mutex
	iteration int
	active    bool
	completed bool
	ceiling   int
}

// NewController returns an idle controller. A non-positive ceiling means
// DefaultMaxIterations.
func NewController(ceiling int) *Controller {
	if ceiling <= 0 {
		ceiling = DefaultMaxIterations
	}
	return &Controller{ceiling: ceiling}
}

// Reset returns the controller to Idle with iteration 0.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iteration = 0
	c.active = false
	c.completed = false
}

// SetActive moves Idle to Active. Deactivating an Active session returns it
// to Idle without touching the iteration count. Activating a Completed
// session requires a Reset first.
func (c *Controller) SetActive(active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if active && c.completed {
		return fmt.Errorf("loop: cannot activate a completed session without reset")
	}
	c.active = active
	return nil
}

// IncrementIteration counts one more round trip. Only valid while Active.
func (c *Controller) IncrementIteration() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.completed {
		return c.iteration, ErrNotActive
	}
	c.iteration++
	return c.iteration, nil
}

// MarkTaskCompleted moves Active to Completed and clears the active flag.
func (c *Controller) MarkTaskCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = true
	c.active = false
}

// ShouldContinue reports whether another iteration may start.
func (c *Controller) ShouldContinue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && !c.completed && c.iteration < c.ceiling
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Iteration: c.iteration,
		Active:    c.active,
		Completed: c.completed,
		Ceiling:   c.ceiling,
	}
}
