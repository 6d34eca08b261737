package llm

import "fmt"

// ChunkType discriminates the events of a normalized output stream.
type ChunkType string

const (
	ChunkText           ChunkType = "text"
	ChunkFunctionCall   ChunkType = "function_call"
	ChunkFunctionResult ChunkType = "function_result"
	ChunkError          ChunkType = "error"
	ChunkContinuation   ChunkType = "continuation"
	ChunkDone           ChunkType = "done"
)

// Chunk is one event in a normalized output stream.
//
// Events of one stream are delivered in emission order. Every stream ends
// with exactly one ChunkDone, an error chunk is always immediately followed
// by ChunkDone, and nothing follows ChunkDone.
type Chunk struct {
	Type   ChunkType
	Text   string      // ChunkText delta, ChunkContinuation note
	Call   *ToolCall   // ChunkFunctionCall
	Result *ToolResult // ChunkFunctionResult
	Err    error       // ChunkError
}

// Kind returns the error kind of an error chunk, or "" for other chunks.
func (c Chunk) Kind() ErrorKind {
	if c.Type != ChunkError {
		return ""
	}
	return KindOf(c.Err)
}

func (c Chunk) String() string {
	switch c.Type {
	case ChunkText, ChunkContinuation:
		return fmt.Sprintf("%s(%q)", c.Type, c.Text)
	case ChunkFunctionCall:
		if c.Call != nil {
			return fmt.Sprintf("%s(%s, %s, %s)", c.Type, c.Call.Name, c.Call.Arguments, c.Call.ID)
		}
	case ChunkFunctionResult:
		if c.Result != nil {
			return fmt.Sprintf("%s(%s, %s)", c.Type, c.Result.Name, c.Result.ID)
		}
	case ChunkError:
		return fmt.Sprintf("%s(%s: %v)", c.Type, c.Kind(), c.Err)
	}
	return string(c.Type)
}

func TextChunk(delta string) Chunk {
	return Chunk{Type: ChunkText, Text: delta}
}

func CallChunk(call ToolCall) Chunk {
	return Chunk{Type: ChunkFunctionCall, Call: &call}
}

func ResultChunk(result ToolResult) Chunk {
	return Chunk{Type: ChunkFunctionResult, Result: &result}
}

func ErrorChunk(err error) Chunk {
	return Chunk{Type: ChunkError, Err: err}
}

func ContinuationChunk(note string) Chunk {
	return Chunk{Type: ChunkContinuation, Text: note}
}

func DoneChunk() Chunk {
	return Chunk{Type: ChunkDone}
}
