package engine

import (
	"context"

	"github.com/samsaffron/conductor/internal/llm"
)

// Handle is a request running in the background.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
	err    error
}

// Start runs request on its own goroutine. Chunks are delivered to onChunk
// from that goroutine.
func (e *Engine) Start(ctx context.Context, request string, onChunk func(llm.Chunk)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.result, h.err = e.Run(ctx, request, onChunk)
	}()
	return h
}

// Cancel stops the request. The stream still ends with error and done.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the request has ended.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the request ends.
func (h *Handle) Wait() (Result, error) {
	<-h.done
	return h.result, h.err
}
