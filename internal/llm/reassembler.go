package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Reassembler turns arbitrarily fragmented model text into text and
// function_call chunks. Text that may still turn into a tool call is held in
// the buffer; everything else is released as soon as it arrives. A candidate
// that never completes is released as text by Flush.
//
// A Reassembler serves a single stream and is not safe for concurrent use.
type Reassembler struct {
	matchers []Matcher
	buf      string
	midLine  bool
	newID    func() string

	// While a held candidate is being watched, fragments collect in pending
	// and the matchers are not rerun until settle reports a change.
	pending strings.Builder
	settle  func(more string) bool
}

// NewReassembler creates a reassembler applying matchers in priority order.
func NewReassembler(matchers ...Matcher) *Reassembler {
	return &Reassembler{
		matchers: matchers,
		newID:    newCallID,
	}
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Feed appends a fragment and returns the chunks it completes.
func (r *Reassembler) Feed(fragment string) []Chunk {
	if r.settle != nil {
		r.pending.WriteString(fragment)
		if !r.settle(fragment) {
			return nil
		}
		r.settle = nil
		r.sync()
		return r.drain(false)
	}
	r.buf += fragment
	return r.drain(false)
}

// Flush releases everything still buffered at end of stream.
func (r *Reassembler) Flush() []Chunk {
	r.settle = nil
	r.sync()
	return r.drain(true)
}

// Buffered returns the text currently held back.
func (r *Reassembler) Buffered() string {
	r.sync()
	return r.buf
}

func (r *Reassembler) sync() {
	if r.pending.Len() == 0 {
		return
	}
	r.buf += r.pending.String()
	r.pending.Reset()
}

func (r *Reassembler) drain(final bool) []Chunk {
	var out []Chunk
	for r.buf != "" {
		in := Input{Buf: r.buf, Final: final, MidLine: r.midLine}

		var best Match
		bestIdx := -1
		hold, holdIdx := len(r.buf), len(r.matchers)
		holdIncomplete := false
		for i, m := range r.matchers {
			res := m.Match(in)
			if res.Status == Matched {
				if res.End <= res.Start {
					continue
				}
				if bestIdx < 0 || res.Start < best.Start {
					best, bestIdx = res, i
				}
				continue
			}
			if !final && res.Start < hold {
				hold, holdIdx = res.Start, i
				holdIncomplete = res.Status == Incomplete
			}
		}

		if bestIdx >= 0 && (best.Start < hold || (best.Start == hold && bestIdx < holdIdx)) {
			out = r.release(out, best.Start)
			call := best.Call
			if call.ID == "" {
				call.ID = r.newID()
			}
			out = append(out, CallChunk(call))
			r.midLine = !strings.HasSuffix(r.buf[:best.End], "\n")
			r.buf = r.buf[best.End:]
			continue
		}
		out = r.release(out, hold)
		if holdIncomplete {
			r.watch(holdIdx)
		}
		break
	}
	return out
}

// watch installs the settle check of the matcher holding the candidate now
// at the front of the buffer. Nothing can be released until that matcher's
// verdict changes, so there is no need to rerun the matchers before then.
func (r *Reassembler) watch(idx int) {
	if w, ok := r.matchers[idx].(Watcher); ok {
		r.settle = w.Watch(r.buf)
	}
}

// release emits buf[:n] as text and drops it from the buffer.
func (r *Reassembler) release(out []Chunk, n int) []Chunk {
	if n <= 0 {
		return out
	}
	text := r.buf[:n]
	r.buf = r.buf[n:]
	r.midLine = !strings.HasSuffix(text, "\n")
	return append(out, TextChunk(text))
}

var (
	partialNameRe    = regexp.MustCompile(`"name"\s*:\s*"([^"\\]+)"`)
	partialPathRe    = regexp.MustCompile(`"(?:path|file_path)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	partialContentRe = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)`)
)

// PartialCall extracts the tool call an unterminated candidate in the buffer
// was describing, if its name can be recovered. String arguments cut off
// mid-value are kept up to the cut.
func (r *Reassembler) PartialCall() *ToolCall {
	r.sync()
	return partialCallFromText(r.buf)
}

func partialCallFromText(text string) *ToolCall {
	m := partialNameRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	args := map[string]string{}
	if pm := partialPathRe.FindStringSubmatch(text); pm != nil {
		args["path"] = unescapeJSONFragment(pm[1])
	}
	if cm := partialContentRe.FindStringSubmatch(text); cm != nil {
		args["content"] = unescapeJSONFragment(cm[1])
	}
	data, _ := json.Marshal(args)
	return &ToolCall{Name: m[1], Arguments: data}
}

// unescapeJSONFragment decodes a JSON string body that may be cut short,
// including in the middle of an escape sequence.
func unescapeJSONFragment(s string) string {
	for len(s) > 0 {
		var out string
		if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err == nil {
			return out
		}
		s = s[:len(s)-1]
	}
	return ""
}
