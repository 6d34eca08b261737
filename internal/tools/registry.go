package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samsaffron/conductor/internal/llm"
)

// Registry maps tool names to tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]llm.Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]llm.Tool)}
}

// NewDefaultRegistry registers every built-in tool. write_file hands its
// changes to gate.
func NewDefaultRegistry(opts Options, gate ApprovalGate) (*Registry, error) {
	limits := opts.Limits
	if limits == (OutputLimits{}) {
		limits = DefaultOutputLimits()
	}
	opts.Limits = limits

	execTool, err := NewExecuteCommandTool(opts)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	for _, tool := range []llm.Tool{
		NewReadFileTool(opts.WorkDir, limits),
		NewPeekFileTool(opts.WorkDir),
		NewWriteFileTool(opts.WorkDir, gate, limits),
		NewListFilesTool(opts.WorkDir, limits),
		NewSearchCodeTool(opts.WorkDir, limits),
		&CreatePlanTool{},
		&UpdateTaskTool{},
		&TaskCompleteTool{},
		execTool,
		NewRunTestsTool(opts),
		NewWebSearchTool(opts.Searcher, opts.SearchMaxResults),
	} {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool llm.Tool) error {
	name := tool.Spec().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (llm.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the specs of all registered tools in name order.
func (r *Registry) Specs() []llm.ToolSpec {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// IsFinishingTool reports whether the named tool ends the session.
func (r *Registry) IsFinishingTool(name string) bool {
	tool, ok := r.Get(name)
	if !ok {
		return false
	}
	if ft, ok := tool.(FinishingTool); ok {
		return ft.IsFinishingTool()
	}
	return false
}

// IsDependent reports whether the named tool waits for pending approvals.
func (r *Registry) IsDependent(name string) bool {
	tool, ok := r.Get(name)
	if !ok {
		return false
	}
	if dt, ok := tool.(DependentTool); ok {
		return dt.WaitsForApprovals()
	}
	return false
}
