package llm

import (
	"context"
	"io"
	"sync"
)

type streamState int

const (
	streamOpen streamState = iota
	streamOweDone
	streamFinished
)

// chunkStream adapts a producer goroutine to the Stream interface and
// enforces the chunk contract: a returned error becomes one error chunk,
// done is delivered exactly once, and nothing is delivered after it.
type chunkStream struct {
	ch        chan Chunk
	cancel    context.CancelFunc
	closeOnce sync.Once
	state     streamState
}

// newChunkStream runs produce in a goroutine. Producers send text and
// function_call chunks on out and return an error on failure; they never
// send done themselves.
func newChunkStream(ctx context.Context, provider string, produce func(ctx context.Context, out chan<- Chunk) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &chunkStream{
		ch:     make(chan Chunk, 32),
		cancel: cancel,
	}
	go func() {
		defer close(s.ch)
		err := produce(ctx, s.ch)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			s.ch <- ErrorChunk(AsProviderError(provider, err))
		}
		s.ch <- DoneChunk()
	}()
	return s
}

// Recv returns the next chunk. It must be called from a single goroutine.
func (s *chunkStream) Recv() (Chunk, error) {
	switch s.state {
	case streamFinished:
		return Chunk{}, io.EOF
	case streamOweDone:
		s.state = streamFinished
		s.Close()
		return DoneChunk(), nil
	}

	chunk, ok := <-s.ch
	if !ok {
		s.state = streamFinished
		return DoneChunk(), nil
	}
	switch chunk.Type {
	case ChunkDone:
		s.state = streamFinished
		s.Close()
	case ChunkError:
		s.state = streamOweDone
	}
	return chunk, nil
}

// Close cancels the producer and drains whatever it still sends.
func (s *chunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		go func() {
			for range s.ch {
			}
		}()
	})
	return nil
}

// send delivers a chunk unless ctx is cancelled first.
func send(ctx context.Context, out chan<- Chunk, chunk Chunk) error {
	select {
	case out <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChatStream runs one request against p and pushes every chunk to onChunk,
// ending with done. The returned error is the error chunk's error, if any.
func ChatStream(ctx context.Context, p Provider, req Request, onChunk func(Chunk)) error {
	stream, err := p.Stream(ctx, req)
	if err != nil {
		err = AsProviderError(p.Name(), err)
		onChunk(ErrorChunk(err))
		onChunk(DoneChunk())
		return err
	}
	defer stream.Close()

	var streamErr error
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return streamErr
		}
		if err != nil {
			// Recv only fails with io.EOF; treat anything else as terminal.
			err = AsProviderError(p.Name(), err)
			onChunk(ErrorChunk(err))
			onChunk(DoneChunk())
			return err
		}
		if chunk.Type == ChunkError {
			streamErr = chunk.Err
		}
		onChunk(chunk)
	}
}
