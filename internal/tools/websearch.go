package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samsaffron/conductor/internal/llm"
	"golang.org/x/net/html"
)

const defaultSearchEndpoint = "https://html.duckduckgo.com/html/"

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// DuckDuckGoSearcher scrapes the DuckDuckGo HTML endpoint, which needs no
// API key.
type DuckDuckGoSearcher struct {
	endpoint string
	client   *http.Client
}

// NewDuckDuckGoSearcher uses the public HTML endpoint when endpoint is empty.
func NewDuckDuckGoSearcher(endpoint string, client *http.Client) *DuckDuckGoSearcher {
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DuckDuckGoSearcher{endpoint: endpoint, client: client}
}

func (s *DuckDuckGoSearcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; conductor)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return parseDuckDuckGoHTML(resp.Body, maxResults), nil
}

// parseDuckDuckGoHTML extracts results from the result__a title links and
// result__snippet elements of the HTML results page.
func parseDuckDuckGoHTML(r io.Reader, maxResults int) []SearchResult {
	z := html.NewTokenizer(r)

	var results []SearchResult
	var text strings.Builder
	// capture is the class being collected; depth tracks nested tags in it.
	capture := ""
	depth := 0

	flush := func() {
		value := strings.Join(strings.Fields(text.String()), " ")
		text.Reset()
		switch capture {
		case "result__a":
			if len(results) > 0 {
				results[len(results)-1].Title = value
			}
		case "result__snippet":
			if len(results) > 0 && results[len(results)-1].Snippet == "" {
				results[len(results)-1].Snippet = value
			}
		}
		capture = ""
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()

		switch tt {
		case html.TextToken:
			if capture != "" {
				text.WriteString(tok.Data)
			}
		case html.StartTagToken:
			if capture != "" {
				depth++
				continue
			}
			classes := strings.Fields(attrVal(tok.Attr, "class"))
			switch {
			case hasClass(classes, "result__a"):
				if maxResults > 0 && len(results) >= maxResults {
					return results
				}
				results = append(results, SearchResult{URL: resolveResultURL(attrVal(tok.Attr, "href"))})
				capture, depth = "result__a", 0
			case hasClass(classes, "result__snippet"):
				capture, depth = "result__snippet", 0
			}
		case html.EndTagToken:
			if capture == "" {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			flush()
		}
	}
	return results
}

// resolveResultURL unwraps DuckDuckGo's redirect links (/l/?uddg=<target>).
func resolveResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(classes []string, name string) bool {
	for _, c := range classes {
		if c == name {
			return true
		}
	}
	return false
}

// attrVal returns the value of a named HTML attribute, or "".
func attrVal(attrs []html.Attribute, name string) string {
	for _, a := range attrs {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// WebSearchTool implements web_search.
type WebSearchTool struct {
	searcher   Searcher
	maxResults int
}

func NewWebSearchTool(searcher Searcher, maxResults int) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearchTool{searcher: searcher, maxResults: maxResults}
}

// WebSearchArgs are the arguments for web_search.
type WebSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (t *WebSearchTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WebSearchToolName,
		Description: "Search the web. Returns titles, URLs and snippets.",
		Schema: objectSchema(map[string]interface{}{
			"query":       stringSchema("Search query"),
			"max_results": integerSchema(fmt.Sprintf("Maximum number of results (default: %d, max: 20)", t.maxResults)),
		}, "query"),
	}
}

func (t *WebSearchTool) Preview(args json.RawMessage) string {
	var a WebSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return ""
	}
	return a.Query
}

func (t *WebSearchTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	var a WebSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorOutput(NewToolError(ErrInvalidParams, err.Error())), nil
	}
	if strings.TrimSpace(a.Query) == "" {
		return errorOutput(NewToolError(ErrInvalidParams, "query is required")), nil
	}
	if t.searcher == nil {
		return errorOutput(NewToolError(ErrNotConfigured, "web search is not configured")), nil
	}
	n := a.MaxResults
	if n <= 0 {
		n = t.maxResults
	}
	if n > 20 {
		n = 20
	}

	results, err := t.searcher.Search(ctx, a.Query, n)
	if err != nil {
		return errorOutput(NewToolErrorf(ErrExecutionFailed, "search failed: %v", err)), nil
	}
	if results == nil {
		results = []SearchResult{}
	}
	return jsonOutput(map[string]any{"query": a.Query, "results": results}), nil
}
