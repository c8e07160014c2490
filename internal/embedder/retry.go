package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryConfig configures exponential backoff for remote calls
type RetryConfig struct {
	MaxRetries int // total attempts, including the first
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// Retryable decides whether an error is worth another attempt; nil retries everything
	Retryable func(error) bool
}

// DefaultRetryConfig returns 3 attempts with delays growing from 100ms to 5s
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
		Retryable:  isRetryable,
	}
}

// apiError is a non-200 response from an embeddings endpoint
type apiError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration // zero when the server sent no hint
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Body)
}

// isRetryable skips retries for client errors other than throttling
func isRetryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

// parseRetryAfter reads a Retry-After header given in seconds
func parseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryWithBackoff calls fn until it succeeds, returns a non-retryable error,
// or runs out of attempts. A server Retry-After hint replaces the computed
// delay, capped at MaxDelay.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxRetries, 1)
	delay := cfg.BaseDelay

	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt >= attempts || (cfg.Retryable != nil && !cfg.Retryable(err)) {
			return zero, err
		}

		wait := delay
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
