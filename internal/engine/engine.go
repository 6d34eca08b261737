// Package engine drives a request through a provider: iterations of
// stream, dispatch and feed back, bounded by a loop.Controller, with
// continuation sessions when a provider runs out of context or time.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/samsaffron/conductor/internal/llm"
	"github.com/samsaffron/conductor/internal/loop"
	"github.com/samsaffron/conductor/internal/metrics"
	"github.com/samsaffron/conductor/internal/tools"
)

// DefaultMaxContinuations bounds how many fresh sessions one request may use.
const DefaultMaxContinuations = 10

// StopReason says why a request ended.
type StopReason string

const (
	StopCompleted StopReason = "completed" // task_complete was called
	StopNatural   StopReason = "natural"   // an iteration produced no tool calls
	StopCeiling   StopReason = "ceiling"   // iteration ceiling reached
	StopError     StopReason = "error"
	StopCancelled StopReason = "cancelled"
)

// Options configures an Engine.
type Options struct {
	Model            string
	System           string
	MaxOutputTokens  int
	Temperature      float32
	MaxIterations    int // per session; loop.DefaultMaxIterations when zero
	MaxContinuations int // DefaultMaxContinuations when zero; negative disables continuation
	Metrics          *metrics.Metrics
}

// Result summarizes a finished request.
type Result struct {
	Reason        StopReason
	Iterations    int // across all sessions
	Continuations int
	Snapshot      loop.Snapshot
}

// Engine runs requests. It holds no per-request state and may run several
// requests concurrently as long as the provider and dispatcher allow it.
type Engine struct {
	provider   llm.Provider
	dispatcher *tools.Dispatcher
	opts       Options
}

func New(provider llm.Provider, dispatcher *tools.Dispatcher, opts Options) *Engine {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = loop.DefaultMaxIterations
	}
	switch {
	case opts.MaxContinuations == 0:
		opts.MaxContinuations = DefaultMaxContinuations
	case opts.MaxContinuations < 0:
		opts.MaxContinuations = 0
	}
	return &Engine{provider: provider, dispatcher: dispatcher, opts: opts}
}

// ListModels returns the static catalog for the engine's provider.
func (e *Engine) ListModels() []llm.ModelInfo {
	return e.provider.ListModels()
}

// sessionResult is what one session reports back to the continuation loop.
type sessionResult struct {
	reason     StopReason
	iterations int
	err        error
}

// runSession runs one loop.Controller session. Chunks go to out, except
// error and done which are left to the caller.
func (e *Engine) runSession(ctx context.Context, state *loop.SessionState, opening string, out *emitter) sessionResult {
	ctrl := loop.NewController(e.opts.MaxIterations)
	ctrl.Reset()
	if err := ctrl.SetActive(true); err != nil {
		return sessionResult{reason: StopError, err: err}
	}
	ctx = tools.WithSession(ctx, state)

	history := []llm.Message{llm.UserText(opening)}
	res := sessionResult{reason: StopNatural}

	for ctrl.ShouldContinue() {
		if err := ctx.Err(); err != nil {
			res.reason, res.err = StopCancelled, err
			return res
		}
		iteration, err := ctrl.IncrementIteration()
		if err != nil {
			res.reason, res.err = StopError, err
			return res
		}
		res.iterations = iteration
		e.opts.Metrics.RecordIteration()

		text, calls, err := e.streamTurn(ctx, history, out)
		if err != nil {
			recordPartialWrite(state, err)
			res.reason, res.err = StopError, err
			if llm.KindOf(err) == llm.KindCancelled {
				res.reason = StopCancelled
			}
			return res
		}
		history = append(history, llm.AssistantTurn(text, calls))

		if len(calls) == 0 {
			slog.Debug("iteration produced no tool calls; stopping", "iteration", iteration)
			return res
		}

		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				res.reason, res.err = StopCancelled, err
				return res
			}
			outcome := e.dispatcher.Dispatch(ctx, call, out.emit)
			out.emit(llm.ResultChunk(outcome.Result))
			history = append(history, llm.ToolResultMessage(outcome.Result))
			if outcome.Finished {
				ctrl.MarkTaskCompleted()
				break
			}
		}
	}

	st := ctrl.State()
	if st.Completed {
		res.reason = StopCompleted
	} else if st.Iteration >= st.Ceiling {
		res.reason = StopCeiling
		slog.Warn("iteration ceiling reached", "ceiling", st.Ceiling)
	}
	return res
}

// streamTurn sends one request and collects the assistant's text and calls.
func (e *Engine) streamTurn(ctx context.Context, history []llm.Message, out *emitter) (string, []llm.ToolCall, error) {
	req := llm.Request{
		Model:           e.opts.Model,
		System:          e.opts.System,
		Messages:        history,
		Tools:           e.dispatcher.Specs(),
		MaxOutputTokens: e.opts.MaxOutputTokens,
		Temperature:     e.opts.Temperature,
	}

	var text strings.Builder
	var calls []llm.ToolCall
	err := llm.ChatStream(ctx, e.provider, req, func(c llm.Chunk) {
		switch c.Type {
		case llm.ChunkText:
			text.WriteString(c.Text)
			out.emit(c)
		case llm.ChunkFunctionCall:
			if c.Call != nil {
				calls = append(calls, *c.Call)
			}
			out.emit(c)
		case llm.ChunkContinuation:
			out.emit(c)
		}
	})

	outcome := "success"
	if err != nil {
		outcome = string(llm.KindOf(err))
	}
	e.opts.Metrics.RecordProviderRequest(e.provider.Name(), outcome)
	return text.String(), calls, err
}

// recordPartialWrite keeps the write_file call that was in flight when the
// stream failed so the next session can redo it.
func recordPartialWrite(state *loop.SessionState, err error) {
	var pe *llm.ProviderError
	if !errors.As(err, &pe) || pe.Partial == nil || pe.Partial.Name != tools.WriteFileToolName {
		return
	}
	path, content := tools.PartialWriteArgs(pe.Partial.Arguments)
	if path == "" {
		return
	}
	state.SetPartialWrite(path, content)
}

// emitter enforces the outer stream contract: nothing after done, and done
// exactly once.
type emitter struct {
	mu       sync.Mutex
	fn       func(llm.Chunk)
	finished bool
}

func newEmitter(fn func(llm.Chunk)) *emitter {
	if fn == nil {
		fn = func(llm.Chunk) {}
	}
	return &emitter{fn: fn}
}

func (e *emitter) emit(c llm.Chunk) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	if c.Type == llm.ChunkDone {
		e.finished = true
	}
	e.fn(c)
}

func (e *emitter) done() {
	e.emit(llm.DoneChunk())
}

func (e *emitter) fail(err error) {
	e.emit(llm.ErrorChunk(err))
	e.done()
}
