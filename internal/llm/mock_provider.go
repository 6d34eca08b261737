package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockTurn is one scripted response: chunks in order, then an optional
// error that ends the stream.
type MockTurn struct {
	Chunks []Chunk
	Err    error
}

// MockProvider replays scripted turns, one per Stream call. It records every
// request. Once the script runs out it answers with an empty turn.
type MockProvider struct {
	name string

	mu       sync.Mutex
	turns    []MockTurn
	current  int
	Requests []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) ListModels() []ModelInfo {
	return []ModelInfo{{ID: "mock", DisplayName: "Mock", ContextWindow: 8192, OutputCeiling: 4096}}
}

// AddTurn appends a scripted turn.
func (p *MockProvider) AddTurn(turn MockTurn) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, turn)
	return p
}

// AddTextResponse appends a turn that streams text and stops.
func (p *MockProvider) AddTextResponse(text string) *MockProvider {
	return p.AddTurn(MockTurn{Chunks: []Chunk{TextChunk(text)}})
}

// AddToolCall appends a turn that makes a single tool call. args is
// marshalled to JSON.
func (p *MockProvider) AddToolCall(id, name string, args any) *MockProvider {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("mock tool call args: %v", err))
	}
	return p.AddTurn(MockTurn{Chunks: []Chunk{CallChunk(ToolCall{ID: id, Name: name, Arguments: raw})}})
}

// AddError appends a turn that fails immediately.
func (p *MockProvider) AddError(err error) *MockProvider {
	return p.AddTurn(MockTurn{Err: err})
}

// CurrentTurn is the number of turns served so far.
func (p *MockProvider) CurrentTurn() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Reset rewinds the script and forgets recorded requests.
func (p *MockProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = 0
	p.Requests = nil
}

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	var turn MockTurn
	if p.current < len(p.turns) {
		turn = p.turns[p.current]
	}
	p.current++
	p.mu.Unlock()

	return newChunkStream(ctx, p.name, func(ctx context.Context, out chan<- Chunk) error {
		for _, c := range turn.Chunks {
			if err := send(ctx, out, c); err != nil {
				return err
			}
		}
		return turn.Err
	}), nil
}
