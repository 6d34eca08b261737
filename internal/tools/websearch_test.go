package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const ddgPage = `<html><body>
<div class="result results_links">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The <b>Go</b> Documentation</a>
  </h2>
  <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">Learn <b>Go</b> with   tutorials.</a>
</div>
<div class="result results_links">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  </h2>
</div>
</body></html>`

func TestParseDuckDuckGoHTML(t *testing.T) {
	results := parseDuckDuckGoHTML(strings.NewReader(ddgPage), 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	want := SearchResult{Title: "The Go Documentation", URL: "https://go.dev/doc/", Snippet: "Learn Go with tutorials."}
	if results[0] != want {
		t.Errorf("got %+v, want %+v", results[0], want)
	}
	if results[1].URL != "https://pkg.go.dev/" || results[1].Snippet != "" {
		t.Errorf("unexpected second result %+v", results[1])
	}

	if limited := parseDuckDuckGoHTML(strings.NewReader(ddgPage), 1); len(limited) != 1 {
		t.Errorf("expected limit of 1, got %d", len(limited))
	}
}

func TestDuckDuckGoSearcher(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	s := NewDuckDuckGoSearcher(srv.URL, srv.Client())
	results, err := s.Search(context.Background(), "golang docs", 5)
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "golang docs" || len(results) != 2 {
		t.Errorf("query=%q results=%+v", gotQuery, results)
	}
}

func TestDuckDuckGoSearcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewDuckDuckGoSearcher(srv.URL, nil).Search(context.Background(), "q", 5)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}
}

type stubSearcher struct {
	results []SearchResult
	err     error
	limit   int
}

func (s *stubSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	s.limit = maxResults
	return s.results, s.err
}

func TestWebSearchTool(t *testing.T) {
	stub := &stubSearcher{results: []SearchResult{{Title: "t", URL: "u"}}}
	tool := NewWebSearchTool(stub, 3)

	output, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x","max_results":50}`))
	if err != nil {
		t.Fatal(err)
	}
	var result struct {
		Results []SearchResult `json:"results"`
	}
	decodeJSONOutput(t, output.Content, &result)
	if len(result.Results) != 1 || stub.limit != 20 {
		t.Errorf("results=%+v limit=%d", result.Results, stub.limit)
	}

	stub.err = errors.New("offline")
	output, _ = tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	if !output.IsError || stub.limit != 3 {
		t.Errorf("expected error output with default limit, got %s (limit %d)", output.Content, stub.limit)
	}

	output, _ = NewWebSearchTool(nil, 0).Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	if !strings.Contains(output.Content, "NOT_CONFIGURED") {
		t.Errorf("expected NOT_CONFIGURED, got %s", output.Content)
	}
}
