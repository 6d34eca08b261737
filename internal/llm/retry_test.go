package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func newTestRetry(p Provider, attempts int) (*RetryProvider, *[]time.Duration) {
	var waits []time.Duration
	rp := WrapWithRetry(p, RetryConfig{MaxAttempts: attempts, BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}).(*RetryProvider)
	rp.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return rp, &waits
}

func TestRetryRecoversFromRateLimit(t *testing.T) {
	inner := NewMockProvider("mock").
		AddError(&ProviderError{Kind: KindRateLimit, Status: 429, RetryAfter: 2 * time.Second}).
		AddError(&ProviderError{Kind: KindTransport, Status: 502}).
		AddTextResponse("finally")
	rp, waits := newTestRetry(inner, 3)

	var retried []int
	rp.config.OnRetry = func(provider string, attempt int, wait time.Duration, err error) {
		retried = append(retried, attempt)
	}

	chunks, err := drain(t, rp, Request{Messages: []Message{UserText("x")}})
	if err != nil {
		t.Fatal(err)
	}
	if chunkText(chunks) != "finally" || inner.CurrentTurn() != 3 {
		t.Errorf("text=%q turns=%d", chunkText(chunks), inner.CurrentTurn())
	}
	if len(*waits) != 2 || (*waits)[0] != 2*time.Second {
		t.Errorf("waits = %v", *waits)
	}
	if len(retried) != 2 {
		t.Errorf("OnRetry calls = %v", retried)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	inner := NewMockProvider("mock")
	for i := 0; i < 5; i++ {
		inner.AddError(&ProviderError{Kind: KindRateLimit, Status: 429})
	}
	rp, waits := newTestRetry(inner, 3)

	chunks, err := drain(t, rp, Request{})
	if KindOf(err) != KindRateLimit {
		t.Fatalf("err = %v", err)
	}
	if inner.CurrentTurn() != 3 || len(*waits) != 2 {
		t.Errorf("turns=%d waits=%v", inner.CurrentTurn(), *waits)
	}
	if len(chunks) != 2 || chunks[0].Type != ChunkError || chunks[1].Type != ChunkDone {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestRetrySkipsNonRetryableKinds(t *testing.T) {
	for _, kind := range []ErrorKind{KindBadRequest, KindContextExhausted, KindTimeout} {
		inner := NewMockProvider("mock").AddError(&ProviderError{Kind: kind}).AddTextResponse("unused")
		rp, _ := newTestRetry(inner, 3)
		_, err := drain(t, rp, Request{})
		if KindOf(err) != kind || inner.CurrentTurn() != 1 {
			t.Errorf("%s: err=%v turns=%d", kind, err, inner.CurrentTurn())
		}
	}
}

func TestRetryNotAfterOutputForwarded(t *testing.T) {
	inner := NewMockProvider("mock").
		AddTurn(MockTurn{Chunks: []Chunk{TextChunk("half an ans")}, Err: &ProviderError{Kind: KindTransport}}).
		AddTextResponse("duplicate")
	rp, _ := newTestRetry(inner, 3)

	chunks, err := drain(t, rp, Request{})
	if KindOf(err) != KindTransport || inner.CurrentTurn() != 1 {
		t.Fatalf("err=%v turns=%d", err, inner.CurrentTurn())
	}
	if chunkText(chunks) != "half an ans" {
		t.Errorf("text = %q", chunkText(chunks))
	}
}

func TestCalculateBackoffBounds(t *testing.T) {
	rp, _ := newTestRetry(NewMockProvider("m"), 3)
	for attempt := 1; attempt <= 6; attempt++ {
		d := rp.calculateBackoff(attempt, errors.New("boom"))
		if d <= 0 || d > 10*time.Second {
			t.Errorf("attempt %d: backoff %v out of bounds", attempt, d)
		}
	}
	if d := rp.calculateBackoff(1, errors.New("please retry after 7 seconds")); d != 7*time.Second {
		t.Errorf("retry-after from message = %v", d)
	}
	if d := rp.calculateBackoff(1, &ProviderError{Kind: KindRateLimit, RetryAfter: time.Minute}); d != 10*time.Second {
		t.Errorf("retry-after should be capped, got %v", d)
	}
}

func TestClassifyStatus(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "3")
	pe := ClassifyStatus("p", 429, []byte("slow"), h)
	if pe.Kind != KindRateLimit || pe.RetryAfter != 3*time.Second {
		t.Errorf("429: %+v", pe)
	}
	if pe := ClassifyStatus("p", 413, nil, http.Header{}); pe.Kind != KindContextExhausted {
		t.Errorf("413: %s", pe.Kind)
	}
	if pe := ClassifyStatus("p", 400, []byte("prompt is too long: 210000 tokens"), http.Header{}); pe.Kind != KindContextExhausted {
		t.Errorf("400 long prompt: %s", pe.Kind)
	}
	if pe := ClassifyStatus("p", 401, []byte("invalid api key"), http.Header{}); pe.Kind != KindBadRequest || pe.Kind.Retryable() {
		t.Errorf("401: %s", pe.Kind)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{context.Canceled, KindCancelled},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("This model's maximum context length is 4096"), KindContextExhausted},
		{errors.New("Rate limit reached for requests"), KindRateLimit},
		{errors.New("read: connection reset by peer"), KindTransport},
		{errors.New(`Post "https://api.deepseek.com/chat/completions": read tcp 192.168.1.7:54012->104.18.26.90:443: read: connection reset by peer`), KindTransport},
		{errors.New("dial tcp 10.0.4.29:4040: connect: connection refused"), KindTransport},
		{errors.New("API error (status 429): slow down"), KindRateLimit},
		{errors.New("unexpected status code: 401"), KindBadRequest},
		{errors.New("status=404 model not found"), KindBadRequest},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if !KindContextExhausted.Continuable() || !KindTimeout.Continuable() || KindRateLimit.Continuable() {
		t.Error("unexpected Continuable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if d := parseRetryAfter("120", now); d != 2*time.Minute {
		t.Errorf("seconds: %v", d)
	}
	if d := parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now); d != 30*time.Second {
		t.Errorf("date: %v", d)
	}
	if d := parseRetryAfter("soon", now); d != 0 {
		t.Errorf("garbage: %v", d)
	}
}

func TestChunkStreamContract(t *testing.T) {
	s := newChunkStream(context.Background(), "p", func(ctx context.Context, out chan<- Chunk) error {
		out <- TextChunk("a")
		return errors.New("connection reset")
	})
	var types []ChunkType
	for {
		c, err := s.Recv()
		if err != nil {
			break
		}
		types = append(types, c.Type)
	}
	want := []ChunkType{ChunkText, ChunkError, ChunkDone}
	if len(types) != len(want) {
		t.Fatalf("types = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("types = %v", types)
		}
	}
}

func TestOutputClamp(t *testing.T) {
	if got := ClampOutputTokens("anthropic", "claude-opus-4-6", 100_000); got != 32_000 {
		t.Errorf("clamp = %d", got)
	}
	if got := ClampOutputTokens("anthropic", "claude-opus-4-6", 1000); got != 1000 {
		t.Errorf("below ceiling = %d", got)
	}
	if got := ClampOutputTokens("nope", "x", 0); got != defaultOutputCeiling {
		t.Errorf("unknown = %d", got)
	}
	if got := ClampHTTPTimeout(5 * time.Second); got != 60*time.Second {
		t.Errorf("timeout clamp = %v", got)
	}
	if got := ClampHTTPTimeout(time.Hour); got != 180*time.Second {
		t.Errorf("timeout clamp = %v", got)
	}
}
