package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorKind categorizes a failure so callers can decide between retrying,
// continuing in a fresh session, or surfacing it to the operator.
type ErrorKind string

const (
	KindTransport        ErrorKind = "TRANSPORT"
	KindRateLimit        ErrorKind = "RATE_LIMIT"
	KindContextExhausted ErrorKind = "CONTEXT_EXHAUSTED"
	KindTimeout          ErrorKind = "TIMEOUT"
	KindBadRequest       ErrorKind = "BAD_REQUEST"
	KindToolExecution    ErrorKind = "TOOL_EXECUTION"
	KindUnknownTool      ErrorKind = "UNKNOWN_TOOL"
	KindCancelled        ErrorKind = "CANCELLED"
)

// Retryable reports whether the adapter should retry locally.
func (k ErrorKind) Retryable() bool {
	return k == KindTransport || k == KindRateLimit
}

// Continuable reports whether a fresh continuation session may pick up the work.
func (k ErrorKind) Continuable() bool {
	return k == KindContextExhausted || k == KindTimeout
}

// ProviderError is a classified failure from a provider adapter.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	Status     int
	Message    string
	RetryAfter time.Duration // server-supplied wait hint, 0 if none
	// Partial is the tool call that was being streamed when the failure
	// happened, with whatever arguments had arrived.
	Partial *ToolCall
	Cause   error
}

func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of err, classifying it if it is not already a
// ProviderError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ClassifyError(err)
}

// AsProviderError returns err as a *ProviderError, classifying it if needed.
func AsProviderError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		return pe
	}
	return &ProviderError{Kind: ClassifyError(err), Provider: provider, Cause: err}
}

// WithPartial attaches the in-flight tool call to a classified error.
func WithPartial(provider string, err error, partial *ToolCall) error {
	if err == nil || partial == nil {
		return err
	}
	pe := AsProviderError(provider, err)
	pe.Partial = partial
	return pe
}

// ClassifyError inspects an error and returns the matching ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return classifyMessage(strings.ToLower(err.Error()))
}

// statusCodeRe finds an HTTP status quoted in an error message. Bare numbers
// are not trusted: addresses and ports in net errors contain them too.
var statusCodeRe = regexp.MustCompile(`\bstatus(?:[ _]?code)?[ =:]+(\d{3})\b`)

func classifyMessage(msg string) ErrorKind {
	status := 0
	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		status, _ = strconv.Atoi(m[1])
	}
	if containsAny(msg,
		"context length", "context_length_exceeded", "maximum context",
		"context window", "prompt is too long", "too many tokens",
		"input is too long", "exceeds the maximum number of tokens") {
		return KindContextExhausted
	}
	if containsAny(msg, "rate limit", "rate_limit", "too many requests", "resource_exhausted") || status == http.StatusTooManyRequests {
		return KindRateLimit
	}
	if containsAny(msg, "timeout", "deadline exceeded", "timed out") {
		return KindTimeout
	}
	if containsAny(msg,
		"invalid api key", "invalid_api_key", "unauthorized", "invalid_request",
		"bad request") {
		return KindBadRequest
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return KindBadRequest
	}
	return KindTransport
}

// ClassifyStatus builds a ProviderError for a non-2xx HTTP response.
func ClassifyStatus(provider string, status int, body []byte, header http.Header) *ProviderError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	e := &ProviderError{
		Provider: provider,
		Status:   status,
		Message:  fmt.Sprintf("API error (status %d): %s", status, msg),
	}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimit
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case status == http.StatusRequestEntityTooLarge:
		e.Kind = KindContextExhausted
	case status >= 500:
		e.Kind = KindTransport
		if status == http.StatusServiceUnavailable {
			e.RetryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
		}
	case status >= 400:
		e.Kind = KindBadRequest
		if classifyMessage(strings.ToLower(msg)) == KindContextExhausted {
			e.Kind = KindContextExhausted
		}
	default:
		e.Kind = KindTransport
	}
	return e
}

// parseRetryAfter accepts either delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
