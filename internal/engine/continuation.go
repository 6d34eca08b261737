package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samsaffron/conductor/internal/llm"
	"github.com/samsaffron/conductor/internal/loop"
)

// ErrContinuationLimit is matched by the terminal error returned once the
// continuation ceiling is exhausted.
var ErrContinuationLimit = errors.New("continuation limit reached")

// ContinuationLimitError wraps the failure that would have needed one more
// continuation. errors.Is matches ErrContinuationLimit and llm.KindOf still
// reports the last failure's kind.
type ContinuationLimitError struct {
	Limit int
	Last  error
}

func (e *ContinuationLimitError) Error() string {
	return fmt.Sprintf("continuation limit (%d) reached: %v", e.Limit, e.Last)
}

func (e *ContinuationLimitError) Unwrap() []error {
	return []error{ErrContinuationLimit, e.Last}
}

// Run executes request to the end and pushes chunks to onChunk. The last
// chunk is always a single done, preceded by an error chunk when Run returns
// an error.
//
// A session that fails with CONTEXT_EXHAUSTED or TIMEOUT is replaced by a
// fresh one seeded with a snapshot of the progress so far, up to
// MaxContinuations times per request.
func (e *Engine) Run(ctx context.Context, request string, onChunk func(llm.Chunk)) (Result, error) {
	out := newEmitter(onChunk)
	state := loop.NewSessionState(request)
	opening := request

	var res Result
	for {
		sr := e.runSession(ctx, state, opening, out)
		res.Iterations += sr.iterations
		res.Snapshot = state.Snapshot()

		if sr.err == nil {
			res.Reason = sr.reason
			out.done()
			return res, nil
		}

		err := sr.err
		if ctx.Err() != nil {
			err = &llm.ProviderError{Kind: llm.KindCancelled, Provider: e.provider.Name(), Cause: ctx.Err()}
			res.Reason = StopCancelled
			out.fail(err)
			return res, err
		}

		kind := llm.KindOf(err)
		if !kind.Continuable() {
			res.Reason = sr.reason
			out.fail(err)
			return res, err
		}
		if res.Continuations >= e.opts.MaxContinuations {
			err = &ContinuationLimitError{Limit: e.opts.MaxContinuations, Last: err}
			res.Reason = StopError
			out.fail(err)
			return res, err
		}

		snap := state.Snapshot()
		seed, serr := snap.Seed()
		if serr != nil {
			res.Reason = StopError
			out.fail(serr)
			return res, serr
		}
		res.Continuations++
		e.opts.Metrics.RecordContinuation(string(kind))
		slog.Info("starting continuation session",
			"reason", kind,
			"continuation", res.Continuations,
			"tasks_completed", snap.CompletedTasks(),
			"files", len(snap.Files))

		out.emit(llm.ContinuationChunk(fmt.Sprintf(
			"%s: continuing in a fresh session (%d/%d), %d of %d tasks done",
			kind, res.Continuations, e.opts.MaxContinuations, snap.CompletedTasks(), len(snap.Tasks))))

		state = loop.NewSessionStateFromSnapshot(snap)
		opening = seed
	}
}
