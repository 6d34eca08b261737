package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type capturedRequest struct {
	header http.Header
	body   map[string]interface{}
}

// sseServer replies to every POST with the given data frames.
func sseServer(t *testing.T, frames []string, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			got.header = r.Header.Clone()
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, &got.body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func textDelta(s string) string {
	b, _ := json.Marshal(s)
	return fmt.Sprintf(`{"choices":[{"index":0,"delta":{"content":%s}}]}`, b)
}

func toolDelta(index int, id, name, args string) string {
	b, _ := json.Marshal(args)
	return fmt.Sprintf(`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":%d,"id":%q,"function":{"name":%q,"arguments":%s}}]}}]}`, index, id, name, b)
}

// drain runs a request through ChatStream and collects the chunks.
func drain(t *testing.T, p Provider, req Request) ([]Chunk, error) {
	t.Helper()
	var chunks []Chunk
	err := ChatStream(context.Background(), p, req, func(c Chunk) { chunks = append(chunks, c) })
	return chunks, err
}

func chunkText(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		if c.Type == ChunkText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

func chunkCalls(chunks []Chunk) []ToolCall {
	var calls []ToolCall
	for _, c := range chunks {
		if c.Type == ChunkFunctionCall {
			calls = append(calls, *c.Call)
		}
	}
	return calls
}

func TestCompatNativeToolDeltasYieldOneCall(t *testing.T) {
	var got capturedRequest
	srv := sseServer(t, []string{
		textDelta("Checking "),
		textDelta("the file."),
		toolDelta(0, "call_1", "read_file", ""),
		toolDelta(0, "", "", `{"pa`),
		toolDelta(0, "", "", `th":"ma`),
		toolDelta(0, "", "", `in.go"}`),
		`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		"[DONE]",
	}, &got)

	p := NewOpenAICompatProvider(srv.URL, "sk-test", "deepseek-chat", CompatOptions{Name: "DeepSeek", Catalog: "deepseek"})
	chunks, err := drain(t, p, Request{
		Messages:        []Message{UserText("read main.go")},
		Tools:           testSpecs,
		MaxOutputTokens: 1_000_000,
	})
	if err != nil {
		t.Fatal(err)
	}

	calls := chunkCalls(chunks)
	if len(calls) != 1 {
		t.Fatalf("expected exactly one call, got %+v", calls)
	}
	if calls[0].ID != "call_1" || calls[0].Name != "read_file" || !sameJSON(t, calls[0].Arguments, `{"path":"main.go"}`) {
		t.Errorf("call = %+v", calls[0])
	}
	text := chunkText(chunks)
	if text != "Checking the file." || strings.Contains(text, "path") {
		t.Errorf("text = %q", text)
	}
	if last := chunks[len(chunks)-1]; last.Type != ChunkDone {
		t.Errorf("last chunk = %v", last)
	}

	if got.header.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("authorization = %q", got.header.Get("Authorization"))
	}
	if got.body["max_tokens"] != float64(8192) {
		t.Errorf("max_tokens = %v, want clamped to 8192", got.body["max_tokens"])
	}
	if tools, _ := got.body["tools"].([]interface{}); len(tools) != 2 {
		t.Errorf("tools = %v", got.body["tools"])
	}
}

func TestCompatInlineToolsParsedFromText(t *testing.T) {
	var got capturedRequest
	srv := sseServer(t, []string{
		textDelta("On it.<|tool"),
		textDelta(`_call|>{"name":"read_file","argu`),
		textDelta(`ments":{"path":"go.mod"}}`),
		"[DONE]",
	}, &got)

	p := NewOpenAICompatProvider(srv.URL, "", "local-model", CompatOptions{Catalog: "lmstudio", InlineTools: true})
	chunks, err := drain(t, p, Request{Messages: []Message{UserText("hi")}, Tools: testSpecs})
	if err != nil {
		t.Fatal(err)
	}
	calls := chunkCalls(chunks)
	if len(calls) != 1 || !sameJSON(t, calls[0].Arguments, `{"path":"go.mod"}`) {
		t.Fatalf("calls = %+v", calls)
	}
	if chunkText(chunks) != "On it." {
		t.Errorf("text = %q", chunkText(chunks))
	}

	if _, ok := got.body["tools"]; ok {
		t.Error("inline mode should not send the tools field")
	}
	messages, _ := got.body["messages"].([]interface{})
	system, _ := messages[0].(map[string]interface{})
	if system["role"] != "system" || !strings.Contains(system["content"].(string), DefaultToolMarker) {
		t.Errorf("system message = %v", system)
	}
	if got.header.Get("Authorization") != "" {
		t.Error("no key should mean no authorization header")
	}
}

func TestCompatStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   ErrorKind
	}{
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, KindRateLimit},
		{http.StatusBadRequest, `{"error":{"message":"This model's maximum context length is 8192 tokens"}}`, KindContextExhausted},
		{http.StatusBadRequest, `{"error":{"message":"invalid tool schema"}}`, KindBadRequest},
		{http.StatusBadGateway, `upstream`, KindTransport},
		{http.StatusGatewayTimeout, ``, KindTimeout},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, tt.body)
		}))
		p := NewOpenAICompatProvider(srv.URL, "", "m", CompatOptions{})
		chunks, err := drain(t, p, Request{Messages: []Message{UserText("x")}})
		srv.Close()

		if KindOf(err) != tt.want {
			t.Errorf("status %d: kind = %s, want %s (%v)", tt.status, KindOf(err), tt.want, err)
		}
		if len(chunks) != 2 || chunks[0].Type != ChunkError || chunks[1].Type != ChunkDone {
			t.Errorf("status %d: chunks = %v", tt.status, chunks)
		}
	}
}

func TestCompatStreamErrorCarriesPartialWrite(t *testing.T) {
	srv := sseServer(t, []string{
		toolDelta(0, "call_9", "write_file", `{"path":"big.go","content":"package big\n`),
		`{"error":{"code":"context_length_exceeded","message":"too long"}}`,
	}, nil)

	p := NewOpenAICompatProvider(srv.URL, "", "m", CompatOptions{})
	chunks, err := drain(t, p, Request{Messages: []Message{UserText("x")}, Tools: testSpecs})

	pe := AsProviderError("", err)
	if pe == nil || pe.Kind != KindContextExhausted {
		t.Fatalf("err = %v", err)
	}
	if pe.Partial == nil || pe.Partial.Name != "write_file" {
		t.Fatalf("partial = %+v", pe.Partial)
	}
	if !sameJSON(t, pe.Partial.Arguments, `{"path":"big.go","content":"package big\n"}`) {
		t.Errorf("partial args = %s", pe.Partial.Arguments)
	}
	if len(chunkCalls(chunks)) != 0 {
		t.Error("an unfinished call must not be emitted")
	}
}

func TestBuildCompatMessages(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a"}`)}
	msgs := buildCompatMessages("sys", []Message{
		UserText("hi"),
		AssistantTurn("looking", []ToolCall{call}),
		ToolResultMessage(ToolResult{ID: "c1", Name: "read_file", Content: "data"}),
	})
	if len(msgs) != 4 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[2].Role != "assistant" || len(msgs[2].ToolCalls) != 1 || msgs[2].ToolCalls[0].Function.Arguments != `{"path":"a"}` {
		t.Errorf("assistant = %+v", msgs[2])
	}
	if msgs[3].Role != "tool" || msgs[3].ToolCallID != "c1" || msgs[3].Content != "data" {
		t.Errorf("tool = %+v", msgs[3])
	}
}
