package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultHTTPTimeout is the hard client-side deadline for one model call.
	DefaultHTTPTimeout = 120 * time.Second
	minHTTPTimeout     = 60 * time.Second
	maxHTTPTimeout     = 180 * time.Second
)

// NewHTTPClient returns a client whose deadline covers the whole streamed
// response. The timeout is kept within 60s..180s; zero means the default.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: ClampHTTPTimeout(timeout)}
}

// ClampHTTPTimeout bounds a configured model-call deadline.
func ClampHTTPTimeout(timeout time.Duration) time.Duration {
	switch {
	case timeout <= 0:
		return DefaultHTTPTimeout
	case timeout < minHTTPTimeout:
		return minHTTPTimeout
	case timeout > maxHTTPTimeout:
		return maxHTTPTimeout
	}
	return timeout
}

// postJSON sends body as JSON and returns the response when the status is
// 2xx. Failures come back classified as *ProviderError.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Kind: KindBadRequest, Provider: provider, Message: fmt.Sprintf("encode request: %v", err), Cause: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &ProviderError{Kind: KindBadRequest, Provider: provider, Message: err.Error(), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		if value == "" {
			continue
		}
		httpReq.Header.Set(key, value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, AsProviderError(provider, fmt.Errorf("%s request failed: %w", provider, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, ClassifyStatus(provider, resp.StatusCode, respBody, resp.Header)
	}
	return resp, nil
}
