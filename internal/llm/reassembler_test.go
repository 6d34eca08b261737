package llm

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

var testSpecs = []ToolSpec{
	{Name: "read_file", Schema: map[string]interface{}{"type": "object", "required": []interface{}{"path"}}},
	{Name: "write_file", Schema: map[string]interface{}{"type": "object", "required": []string{"path", "content"}}},
}

func newTestReassembler() *Reassembler {
	r := NewReassembler(DefaultMatchers(DefaultToolMarker, testSpecs)...)
	r.newID = func() string { return "call_test" }
	return r
}

// collect feeds fragments then flushes, merging adjacent text chunks.
func collect(r *Reassembler, fragments ...string) (text []string, calls []ToolCall) {
	var chunks []Chunk
	for _, f := range fragments {
		chunks = append(chunks, r.Feed(f)...)
	}
	chunks = append(chunks, r.Flush()...)

	var cur strings.Builder
	for _, c := range chunks {
		switch c.Type {
		case ChunkText:
			cur.WriteString(c.Text)
		case ChunkFunctionCall:
			if cur.Len() > 0 {
				text = append(text, cur.String())
				cur.Reset()
			}
			calls = append(calls, *c.Call)
		}
	}
	if cur.Len() > 0 {
		text = append(text, cur.String())
	}
	return text, calls
}

func sameJSON(t *testing.T, got json.RawMessage, want string) bool {
	t.Helper()
	var a, b interface{}
	if err := json.Unmarshal(got, &a); err != nil {
		t.Fatalf("invalid arguments %s: %v", got, err)
	}
	json.Unmarshal([]byte(want), &b)
	return reflect.DeepEqual(a, b)
}

func TestReassemblerInlineMarkerAnySplit(t *testing.T) {
	input := `Let me look.<|tool_call|>{"name":"read_file","arguments":{"path":"main.go"}} ok`

	for i := 0; i <= len(input); i++ {
		for j := i; j <= len(input); j++ {
			text, calls := collect(newTestReassembler(), input[:i], input[i:j], input[j:])
			if len(calls) != 1 {
				t.Fatalf("split %d/%d: got %d calls", i, j, len(calls))
			}
			if calls[0].Name != "read_file" || !sameJSON(t, calls[0].Arguments, `{"path":"main.go"}`) {
				t.Fatalf("split %d/%d: call = %+v", i, j, calls[0])
			}
			if strings.Join(text, "|") != "Let me look.| ok" {
				t.Fatalf("split %d/%d: text = %q", i, j, text)
			}
		}
	}
}

func TestReassemblerStringifiedArguments(t *testing.T) {
	_, calls := collect(newTestReassembler(),
		`<|tool_call|> {"name":"write_file","arguments":"{\"path\":\"a.txt\",\"content\":\"}{\"}"}`)
	if len(calls) != 1 || !sameJSON(t, calls[0].Arguments, `{"path":"a.txt","content":"}{"}`) {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestReassemblerUndecodableSpanIsText(t *testing.T) {
	input := `<|tool_call|>{"arguments":{}} trailing`
	text, calls := collect(newTestReassembler(), input)
	if len(calls) != 0 || strings.Join(text, "") != input {
		t.Errorf("text=%q calls=%+v", text, calls)
	}
}

func TestReassemblerIncompleteMarkerFlushedAsText(t *testing.T) {
	r := newTestReassembler()
	chunks := r.Feed(`before <|tool_call|>{"name":"write_file","arguments":{"path":"x.go","content":"pack`)
	if len(chunks) != 1 || chunks[0].Text != "before " {
		t.Fatalf("chunks = %v", chunks)
	}

	partial := r.PartialCall()
	if partial == nil || partial.Name != "write_file" || !sameJSON(t, partial.Arguments, `{"path":"x.go","content":"pack"}`) {
		t.Errorf("partial = %+v", partial)
	}

	flushed := r.Flush()
	if len(flushed) != 1 || flushed[0].Type != ChunkText || !strings.HasPrefix(flushed[0].Text, "<|tool_call|>") {
		t.Errorf("flushed = %v", flushed)
	}
	if r.Buffered() != "" {
		t.Errorf("buffer not empty: %q", r.Buffered())
	}
}

func TestReassemblerHoldsMarkerPrefix(t *testing.T) {
	r := newTestReassembler()
	chunks := r.Feed("hello <|tool")
	if len(chunks) != 1 || chunks[0].Text != "hello " || r.Buffered() != "<|tool" {
		t.Fatalf("chunks=%v buffered=%q", chunks, r.Buffered())
	}
	// Not a marker after all.
	chunks = r.Feed("box|> world")
	if len(chunks) != 1 || chunks[0].Text != "<|toolbox|> world" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestReassemblerTaggedCall(t *testing.T) {
	text, calls := collect(newTestReassembler(),
		"Reading now <tool_", `call>read_file(path="cmd/main.go")</tool_call>`, " then more")
	if len(calls) != 1 || calls[0].Name != "read_file" || !sameJSON(t, calls[0].Arguments, `{"path":"cmd/main.go"}`) {
		t.Fatalf("calls = %+v", calls)
	}
	if strings.Join(text, "|") != "Reading now | then more" {
		t.Errorf("text = %q", text)
	}
}

func TestReassemblerTaggedJSONBody(t *testing.T) {
	_, calls := collect(newTestReassembler(), `[TOOL_CALL]{"name":"read_file","parameters":{"path":"a"}}[/TOOL_CALL]`)
	if len(calls) != 1 || !sameJSON(t, calls[0].Arguments, `{"path":"a"}`) {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestReassemblerBareCall(t *testing.T) {
	text, calls := collect(newTestReassembler(),
		"I'll check.\nread_f", "ile(\"go.mod\")\n", "Done.")
	if len(calls) != 1 || calls[0].Name != "read_file" || !sameJSON(t, calls[0].Arguments, `{"path":"go.mod"}`) {
		t.Fatalf("calls = %+v", calls)
	}
	if strings.Join(text, "|") != "I'll check.\n|Done." {
		t.Errorf("text = %q", text)
	}
}

func TestReassemblerBareCallNeedsWholeLineAndKnownTool(t *testing.T) {
	tests := []string{
		"You could call read_file(\"go.mod\") yourself.\n",
		"delete_everything(\"/\")\n",
		"print(read_file)\n",
	}
	for _, input := range tests {
		text, calls := collect(newTestReassembler(), input)
		if len(calls) != 0 || strings.Join(text, "") != input {
			t.Errorf("%q: text=%q calls=%+v", input, text, calls)
		}
	}
}

func TestReassemblerBareCallAtEndOfStream(t *testing.T) {
	_, calls := collect(newTestReassembler(), "write_file(path='a.txt', content='hi, there')")
	if len(calls) != 1 || !sameJSON(t, calls[0].Arguments, `{"path":"a.txt","content":"hi, there"}`) {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestReassemblerMultipleCallsInOrder(t *testing.T) {
	input := `<|tool_call|>{"name":"read_file","arguments":{"path":"a"}}<|tool_call|>{"name":"read_file","arguments":{"path":"b"}}`
	_, calls := collect(newTestReassembler(), input)
	if len(calls) != 2 {
		t.Fatalf("calls = %+v", calls)
	}
	if !sameJSON(t, calls[0].Arguments, `{"path":"a"}`) || !sameJSON(t, calls[1].Arguments, `{"path":"b"}`) {
		t.Errorf("calls out of order: %+v", calls)
	}
}

func TestParsePseudoCallValues(t *testing.T) {
	call, err := parsePseudoCall(`write_file("a.go", content="x", mode=0644, force=true, ratio=0.5)`, positionalParams(testSpecs))
	if err != nil {
		t.Fatal(err)
	}
	if !sameJSON(t, call.Arguments, `{"path":"a.go","content":"x","mode":644,"force":true,"ratio":0.5}`) {
		t.Errorf("args = %s", call.Arguments)
	}
}

type countingMatcher struct {
	InlineJSONMatcher
	calls *int
}

func (m countingMatcher) Match(in Input) Match {
	*m.calls++
	return m.InlineJSONMatcher.Match(in)
}

func TestReassemblerLargeInlineWriteScansOnce(t *testing.T) {
	content := strings.Repeat(`line with "quotes" and {braces}\n`, 6000)
	args, _ := json.Marshal(map[string]string{"path": "big.txt", "content": content})
	input := `Writing.<|tool_call|>{"name":"write_file","arguments":` + string(args) + `} done`

	calls := 0
	r := NewReassembler(countingMatcher{InlineJSONMatcher{Marker: DefaultToolMarker}, &calls})
	var chunks []Chunk
	for i := 0; i < len(input); i += 4 {
		end := i + 4
		if end > len(input) {
			end = len(input)
		}
		chunks = append(chunks, r.Feed(input[i:end])...)
	}
	chunks = append(chunks, r.Flush()...)

	var got []ToolCall
	for _, c := range chunks {
		if c.Type == ChunkFunctionCall {
			got = append(got, *c.Call)
		}
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 call, got %d", len(got))
	}
	var a map[string]string
	if err := json.Unmarshal(got[0].Arguments, &a); err != nil || a["content"] != content {
		t.Errorf("content not carried intact (err=%v, len=%d)", err, len(a["content"]))
	}
	if calls > 20 {
		t.Errorf("matcher ran %d times for one held candidate", calls)
	}
}

func TestReassemblerWatchedCandidateSplitClose(t *testing.T) {
	text, calls := collect(newTestReassembler(),
		"ok <tool_call>", `read_file(path="a.go")</tool_`, "call> after")
	if len(calls) != 1 || !sameJSON(t, calls[0].Arguments, `{"path":"a.go"}`) {
		t.Fatalf("calls = %+v", calls)
	}
	if strings.Join(text, "|") != "ok | after" {
		t.Errorf("text = %q", text)
	}

	text, calls = collect(newTestReassembler(), "read_file(", `path="b.go"`, ")", "\nnext")
	if len(calls) != 1 || !sameJSON(t, calls[0].Arguments, `{"path":"b.go"}`) {
		t.Fatalf("bare calls = %+v", calls)
	}
	if strings.Join(text, "|") != "next" {
		t.Errorf("bare text = %q", text)
	}
}

func TestReassemblerBufferedWhileWatching(t *testing.T) {
	r := newTestReassembler()
	r.Feed(`<|tool_call|>{"name":"read_file",`)
	r.Feed(`"arguments":{"path":"x`)
	if got := r.Buffered(); got != `<|tool_call|>{"name":"read_file","arguments":{"path":"x` {
		t.Errorf("buffered = %q", got)
	}
	chunks := r.Feed(`"}}`)
	if len(chunks) != 1 || chunks[0].Type != ChunkFunctionCall {
		t.Errorf("chunks = %v", chunks)
	}
}
