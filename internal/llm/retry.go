package llm

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(provider string, attempt int, wait time.Duration, err error)
}

// DefaultRetryConfig returns the defaults for rate limit and transport retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// RetryProvider wraps a provider with automatic retry on transient errors.
// A stream is only retried while it has not delivered anything, so the
// consumer never sees the same output twice.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// WrapWithRetry wraps a provider with retry logic.
func WrapWithRetry(p Provider, config RetryConfig) Provider {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &RetryProvider{inner: p, config: config, sleep: sleepCtx}
}

func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

func (r *RetryProvider) ListModels() []ModelInfo {
	return r.inner.ListModels()
}

func (r *RetryProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newChunkStream(ctx, r.Name(), func(ctx context.Context, out chan<- Chunk) error {
		var lastErr error

		for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
			forwarded := false
			stream, err := r.inner.Stream(ctx, req)
			if err == nil {
				forwarded, err = r.forward(ctx, stream, out)
				if err == nil {
					return nil
				}
			}
			lastErr = err
			if forwarded || !isRetryable(err) {
				return err
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt >= r.config.MaxAttempts {
				break
			}

			wait := r.calculateBackoff(attempt, lastErr)
			slog.Warn("retrying provider request", "provider", r.Name(), "attempt", attempt, "wait", wait, "error", lastErr)
			if r.config.OnRetry != nil {
				r.config.OnRetry(r.Name(), attempt, wait, lastErr)
			}
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
		}

		return lastErr
	}), nil
}

// forward copies chunks from the inner stream until done. It returns the
// stream's error, if any, and whether anything was passed on.
func (r *RetryProvider) forward(ctx context.Context, stream Stream, out chan<- Chunk) (bool, error) {
	defer stream.Close()

	forwarded := false
	for {
		if ctx.Err() != nil {
			return forwarded, ctx.Err()
		}
		chunk, err := stream.Recv()
		if err == io.EOF {
			return forwarded, nil
		}
		if err != nil {
			return forwarded, err
		}
		switch chunk.Type {
		case ChunkDone:
			return forwarded, nil
		case ChunkError:
			return forwarded, chunk.Err
		}
		if err := send(ctx, out, chunk); err != nil {
			return forwarded, err
		}
		forwarded = true
	}
}

// isRetryable returns true if the error is a transient error worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Retryable()
}

// retryAfterRegex matches Retry-After values in error messages.
var retryAfterRegex = regexp.MustCompile(`(?i)retry[- ]?after[:\s]+(\d+)`)

// calculateBackoff computes the wait duration for a retry attempt.
func (r *RetryProvider) calculateBackoff(attempt int, err error) time.Duration {
	if pe := AsProviderError(r.Name(), err); pe != nil && pe.RetryAfter > 0 {
		return min(pe.RetryAfter, r.config.MaxBackoff)
	}

	if err != nil {
		if matches := retryAfterRegex.FindStringSubmatch(err.Error()); len(matches) > 1 {
			if secs, parseErr := strconv.Atoi(matches[1]); parseErr == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, r.config.MaxBackoff)
			}
		}
	}

	// Exponential backoff: base * 2^(attempt-1)
	backoff := float64(r.config.BaseBackoff) * math.Pow(2, float64(attempt-1))

	// Add jitter: +/- 25%
	jitter := (rand.Float64() - 0.5) * 0.5 * backoff
	backoff += jitter

	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}

	return time.Duration(backoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
