package llm

import (
	"encoding/json"
	"sort"
	"strings"
)

// nativeToolState accumulates tool calls that a backend streams as
// structured deltas: an index, then id, name and argument fragments spread
// over any number of events. No text scanning is involved.
type nativeToolState struct {
	byIndex map[int]*toolCallState
	order   []int
}

type toolCallState struct {
	id       string
	name     string
	args     strings.Builder
	finished bool
}

func newNativeToolState() *nativeToolState {
	return &nativeToolState{byIndex: make(map[int]*toolCallState)}
}

// Add merges one delta for the call at index.
func (s *nativeToolState) Add(index int, id, name, argsFragment string) {
	state, ok := s.byIndex[index]
	if !ok {
		state = &toolCallState{}
		s.byIndex[index] = state
		s.order = append(s.order, index)
	}
	if id != "" {
		state.id = id
	}
	if name != "" {
		state.name = name
	}
	if argsFragment != "" {
		state.args.WriteString(argsFragment)
	}
}

// Finish completes the call at index and returns it. It returns false for
// unknown, unnamed or already finished calls.
func (s *nativeToolState) Finish(index int) (ToolCall, bool) {
	state, ok := s.byIndex[index]
	if !ok || state.finished || state.name == "" {
		return ToolCall{}, false
	}
	state.finished = true
	return state.call(), true
}

// Calls returns every unfinished call in index order and marks them finished.
func (s *nativeToolState) Calls() []ToolCall {
	if len(s.order) == 0 {
		return nil
	}
	sort.Ints(s.order)
	var calls []ToolCall
	for _, idx := range s.order {
		if call, ok := s.Finish(idx); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// Partial returns the latest unfinished call with whatever arguments have
// arrived so far.
func (s *nativeToolState) Partial() *ToolCall {
	for i := len(s.order) - 1; i >= 0; i-- {
		state := s.byIndex[s.order[i]]
		if state == nil || state.finished || state.name == "" {
			continue
		}
		raw := state.args.String()
		if json.Valid([]byte(raw)) {
			call := state.call()
			return &call
		}
		partial := partialCallFromText(`"name":"` + state.name + `",` + raw)
		if partial != nil {
			partial.ID = state.id
		}
		return partial
	}
	return nil
}

func (st *toolCallState) call() ToolCall {
	args := json.RawMessage(st.args.String())
	if normalized, err := normalizeArguments(args); err == nil {
		args = normalized
	}
	return ToolCall{ID: st.id, Name: st.name, Arguments: args}
}
