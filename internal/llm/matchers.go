package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultToolMarker introduces an inline JSON tool call in model text.
const DefaultToolMarker = "<|tool_call|>"

// MatchStatus is the outcome of running a Matcher over the buffer.
type MatchStatus int

const (
	NoMatch MatchStatus = iota
	Incomplete
	Matched
)

func (s MatchStatus) String() string {
	switch s {
	case Incomplete:
		return "incomplete"
	case Matched:
		return "matched"
	default:
		return "no-match"
	}
}

// Match describes what a Matcher found in the buffer.
//
// Start is the earliest buffer offset the matcher may still claim. For a
// Matched or Incomplete result it is where the candidate begins; for NoMatch
// it is where a possible candidate prefix begins, or len(buf) when nothing
// needs to be held back. End is exclusive and only set when Matched.
type Match struct {
	Status MatchStatus
	Start  int
	End    int
	Call   ToolCall
}

// Input is the buffered text handed to a Matcher.
type Input struct {
	Buf string
	// Final is set when no more text will arrive, so candidates cut off by
	// the end of Buf are judged as they are.
	Final bool
	// MidLine is set when Buf does not begin at the start of a line.
	MidLine bool
}

// Matcher recognizes one inline tool call encoding.
type Matcher interface {
	Name() string
	// Match scans the input for the earliest candidate.
	Match(in Input) Match
}

// Watcher is implemented by matchers that can follow a held candidate as
// text arrives. Watch is given the buffer, which begins with a candidate the
// matcher reported Incomplete, and returns a function that is handed each
// later fragment and reports whether the candidate may now be settled. A nil
// function leaves the candidate to be rescanned on every fragment.
type Watcher interface {
	Watch(held string) func(more string) bool
}

// DefaultMatchers returns the text matchers in priority order: inline JSON
// marker, tagged pseudo-call block, then the bare name(args) heuristic
// restricted to the given tools.
func DefaultMatchers(marker string, tools []ToolSpec) []Matcher {
	if marker == "" {
		marker = DefaultToolMarker
	}
	params := positionalParams(tools)
	return []Matcher{
		InlineJSONMatcher{Marker: marker},
		TaggedCallMatcher{Params: params},
		BareCallMatcher{Params: params},
	}
}

// positionalParams maps each tool name to its required parameters, in the
// order used for positional pseudo-call arguments.
func positionalParams(tools []ToolSpec) map[string][]string {
	params := make(map[string][]string, len(tools))
	for _, spec := range tools {
		params[spec.Name] = SchemaRequired(spec.Schema)
	}
	return params
}

// InlineJSONMatcher finds Marker followed by optional whitespace and a JSON
// object {"name": ..., "arguments": {...}}.
type InlineJSONMatcher struct {
	Marker string
}

func (m InlineJSONMatcher) Name() string { return "inline_json" }

func (m InlineJSONMatcher) Match(in Input) Match {
	buf := in.Buf
	from := 0
	for {
		idx := strings.Index(buf[from:], m.Marker)
		if idx < 0 {
			return Match{Status: NoMatch, Start: from + heldPrefix(buf[from:], m.Marker)}
		}
		start := from + idx
		pos := skipSpace(buf, start+len(m.Marker))
		if pos == len(buf) {
			return Match{Status: Incomplete, Start: start}
		}
		if buf[pos] != '{' {
			from = start + len(m.Marker)
			continue
		}
		end, ok := scanBalanced(buf, pos)
		if !ok {
			return Match{Status: Incomplete, Start: start}
		}
		call, err := decodeInlineCall(buf[pos:end])
		if err != nil {
			// A balanced span that does not decode can never become valid.
			from = end
			continue
		}
		return Match{Status: Matched, Start: start, End: end, Call: call}
	}
}

func (m InlineJSONMatcher) Watch(held string) func(more string) bool {
	if !strings.HasPrefix(held, m.Marker) {
		return nil
	}
	var sc braceScanner
	opened := false
	step := func(more string) bool {
		if !opened {
			more = strings.TrimLeft(more, " \t\r\n")
			if more == "" {
				return false
			}
			if more[0] != '{' {
				return true
			}
			opened = true
		}
		return sc.feed(more) >= 0
	}
	if step(held[len(m.Marker):]) {
		return nil
	}
	return step
}

type inlinePayload struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

func decodeInlineCall(raw string) (ToolCall, error) {
	var p inlinePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return ToolCall{}, err
	}
	if p.Name == "" {
		return ToolCall{}, fmt.Errorf("inline tool call without name")
	}
	args := p.Arguments
	if len(args) == 0 {
		args = p.Parameters
	}
	args, err := normalizeArguments(args)
	if err != nil {
		return ToolCall{}, err
	}
	return ToolCall{Name: p.Name, Arguments: args}, nil
}

// normalizeArguments accepts an object or a JSON string holding an object.
func normalizeArguments(args json.RawMessage) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(args))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}"), nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, err
		}
		trimmed = strings.TrimSpace(inner)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, fmt.Errorf("tool arguments are not an object: %w", err)
	}
	return json.RawMessage(trimmed), nil
}

type tagPair struct {
	open, close string
}

var callTags = []tagPair{
	{"<tool_call>", "</tool_call>"},
	{"[TOOL_CALL]", "[/TOOL_CALL]"},
}

// TaggedCallMatcher finds blocks such as <tool_call>name(k=v, k2="v2")</tool_call>.
// A block body that is a JSON object is decoded like an inline call.
type TaggedCallMatcher struct {
	Params map[string][]string
}

func (m TaggedCallMatcher) Name() string { return "tagged" }

func (m TaggedCallMatcher) Match(in Input) Match {
	buf := in.Buf
	from := 0
	for {
		start, pair := -1, tagPair{}
		held := len(buf)
		for _, p := range callTags {
			if idx := strings.Index(buf[from:], p.open); idx >= 0 && (start < 0 || from+idx < start) {
				start, pair = from+idx, p
			}
			if h := from + heldPrefix(buf[from:], p.open); h < held {
				held = h
			}
		}
		if start < 0 {
			return Match{Status: NoMatch, Start: held}
		}
		bodyStart := start + len(pair.open)
		closeIdx := strings.Index(buf[bodyStart:], pair.close)
		if closeIdx < 0 {
			return Match{Status: Incomplete, Start: start}
		}
		body := strings.TrimSpace(buf[bodyStart : bodyStart+closeIdx])
		end := bodyStart + closeIdx + len(pair.close)

		var call ToolCall
		var err error
		if strings.HasPrefix(body, "{") {
			call, err = decodeInlineCall(body)
		} else {
			call, err = parsePseudoCall(body, m.Params)
		}
		if err != nil {
			from = end
			continue
		}
		return Match{Status: Matched, Start: start, End: end, Call: call}
	}
}

func (m TaggedCallMatcher) Watch(held string) func(more string) bool {
	for _, p := range callTags {
		if !strings.HasPrefix(held, p.open) {
			continue
		}
		closeTag := p.close
		body := held[len(p.open):]
		if strings.Contains(body, closeTag) {
			return nil
		}
		tail := suffix(body, len(closeTag)-1)
		return func(more string) bool {
			window := tail + more
			if strings.Contains(window, closeTag) {
				return true
			}
			tail = suffix(window, len(closeTag)-1)
			return false
		}
	}
	return nil
}

func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// BareCallMatcher recognizes a line that consists solely of name(args) for
// a registered tool. Lines mixing prose and a call are left alone.
type BareCallMatcher struct {
	Params map[string][]string
}

func (m BareCallMatcher) Name() string { return "bare" }

func (m BareCallMatcher) Match(in Input) Match {
	buf := in.Buf
	lineStart := 0
	if in.MidLine {
		nl := strings.IndexByte(buf, '\n')
		if nl < 0 {
			return Match{Status: NoMatch, Start: len(buf)}
		}
		lineStart = nl + 1
	}
	for lineStart < len(buf) {
		nl := strings.IndexByte(buf[lineStart:], '\n')
		if nl < 0 {
			line := buf[lineStart:]
			if in.Final {
				if call, ok := m.parseLine(line); ok {
					return Match{Status: Matched, Start: lineStart, End: len(buf), Call: call}
				}
				return Match{Status: NoMatch, Start: len(buf)}
			}
			switch m.prefixState(line) {
			case prefixCall:
				return Match{Status: Incomplete, Start: lineStart}
			case prefixMaybe:
				return Match{Status: NoMatch, Start: lineStart}
			}
			return Match{Status: NoMatch, Start: len(buf)}
		}
		lineEnd := lineStart + nl
		if call, ok := m.parseLine(buf[lineStart:lineEnd]); ok {
			return Match{Status: Matched, Start: lineStart, End: lineEnd + 1, Call: call}
		}
		lineStart = lineEnd + 1
	}
	return Match{Status: NoMatch, Start: len(buf)}
}

// Watch settles a held line once it ends.
func (m BareCallMatcher) Watch(held string) func(more string) bool {
	return func(more string) bool {
		return strings.IndexByte(more, '\n') >= 0
	}
}

func (m BareCallMatcher) parseLine(line string) (ToolCall, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimSuffix(s, ";")
	if !strings.HasSuffix(s, ")") {
		return ToolCall{}, false
	}
	open := strings.IndexByte(s, '(')
	if open <= 0 {
		return ToolCall{}, false
	}
	if _, ok := m.Params[s[:open]]; !ok {
		return ToolCall{}, false
	}
	call, err := parsePseudoCall(s, m.Params)
	if err != nil {
		return ToolCall{}, false
	}
	return call, true
}

type prefixKind int

const (
	prefixNone prefixKind = iota
	prefixMaybe
	prefixCall
)

// prefixState reports whether an unterminated line could still become a
// bare call: prefixCall once "name(" has been seen, prefixMaybe while the
// line is a prefix of some "name(".
func (m BareCallMatcher) prefixState(line string) prefixKind {
	s := strings.TrimLeft(line, " \t")
	if s == "" {
		if line == "" {
			return prefixNone
		}
		return prefixMaybe
	}
	for name := range m.Params {
		head := name + "("
		if strings.HasPrefix(s, head) {
			return prefixCall
		}
		if strings.HasPrefix(head, s) {
			return prefixMaybe
		}
	}
	return prefixNone
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// parsePseudoCall parses name(k=v, k2="v2", ...). Positional values are
// assigned to the tool's required parameters in order.
func parsePseudoCall(s string, params map[string][]string) (ToolCall, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return ToolCall{}, fmt.Errorf("not a call: %q", s)
	}
	name := strings.TrimSpace(s[:open])
	if !identRe.MatchString(name) {
		return ToolCall{}, fmt.Errorf("invalid tool name %q", name)
	}
	pieces, err := splitArgs(s[open+1 : len(s)-1])
	if err != nil {
		return ToolCall{}, err
	}

	args := make(map[string]interface{}, len(pieces))
	positional := 0
	for _, piece := range pieces {
		key, value, hasKey := splitKeyValue(piece)
		if !hasKey {
			order := params[name]
			if positional < len(order) {
				key = order[positional]
			} else {
				key = fmt.Sprintf("arg%d", positional)
			}
			positional++
		}
		args[key] = parseArgValue(value)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ToolCall{}, err
	}
	return ToolCall{Name: name, Arguments: data}, nil
}

// splitArgs splits on top-level commas, respecting quotes and escapes.
func splitArgs(s string) ([]string, error) {
	var pieces []string
	var cur strings.Builder
	var quote byte
	escaped := false
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			cur.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				pieces = append(pieces, cur.String())
				cur.Reset()
				continue
			}
		}
		cur.WriteByte(c)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string in arguments")
	}
	if last := cur.String(); strings.TrimSpace(last) != "" || len(pieces) > 0 {
		pieces = append(pieces, last)
	}
	out := pieces[:0]
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func splitKeyValue(piece string) (key, value string, ok bool) {
	if piece == "" || piece[0] == '"' || piece[0] == '\'' {
		return "", piece, false
	}
	idx := strings.IndexAny(piece, "=:")
	if idx <= 0 {
		return "", piece, false
	}
	key = strings.TrimSpace(piece[:idx])
	if !identRe.MatchString(key) {
		return "", piece, false
	}
	return key, strings.TrimSpace(piece[idx+1:]), true
}

// parseArgValue decodes a quoted string, boolean or number, else keeps the
// raw text.
func parseArgValue(v string) interface{} {
	v = strings.TrimSpace(v)
	if len(v) >= 2 {
		switch {
		case v[0] == '"' && v[len(v)-1] == '"':
			if s, err := strconv.Unquote(v); err == nil {
				return s
			}
			return v[1 : len(v)-1]
		case v[0] == '\'' && v[len(v)-1] == '\'':
			inner := v[1 : len(v)-1]
			return strings.ReplaceAll(inner, `\'`, `'`)
		}
	}
	switch v {
	case "true", "True":
		return true
	case "false", "False":
		return false
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// scanBalanced scans a JSON value starting at s[start] ('{' or '[') and
// returns the offset just past its closing bracket. Brackets inside quoted
// strings are ignored and backslash escapes are honored.
func scanBalanced(s string, start int) (int, bool) {
	var sc braceScanner
	if n := sc.feed(s[start:]); n >= 0 {
		return start + n, true
	}
	return len(s), false
}

// braceScanner tracks bracket depth across successive pieces of one JSON
// value.
type braceScanner struct {
	depth    int
	inString bool
	escaped  bool
}

// feed advances over s and returns the offset in s just past the bracket
// that closes the value, or -1 if it is still open.
func (b *braceScanner) feed(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if b.inString {
			switch {
			case b.escaped:
				b.escaped = false
			case c == '\\':
				b.escaped = true
			case c == '"':
				b.inString = false
			}
			continue
		}
		switch c {
		case '"':
			b.inString = true
		case '{', '[':
			b.depth++
		case '}', ']':
			b.depth--
			if b.depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// heldPrefix returns the offset of the longest suffix of s that is a proper
// prefix of marker, or len(s) if there is none.
func heldPrefix(s, marker string) int {
	n := len(marker) - 1
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return len(s) - n
		}
	}
	return len(s)
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}
