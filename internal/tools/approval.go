package tools

// ProposedChange is a file write handed to the approval gate instead of
// being applied directly.
type ProposedChange struct {
	Path     string // absolute path
	Original string // prior content; empty when the file is new
	Exists   bool
	Proposed string
}

// ApprovalGate is the external review workflow for proposed file changes.
// The core only submits changes and polls for outstanding ones; accepting
// or rejecting happens elsewhere.
type ApprovalGate interface {
	// Submit queues a change for review and returns its id.
	Submit(change ProposedChange) (string, error)
	HasPendingApprovals() bool
}

// Decision is the review outcome of one submitted change.
type Decision struct {
	ChangeID string `json:"changeId"`
	Path     string `json:"path"`
	Accepted bool   `json:"accepted"`
}

// DecisionReporter is implemented by gates that can report review outcomes.
// TakeDecisions returns the decisions made since the previous call.
type DecisionReporter interface {
	TakeDecisions() []Decision
}
