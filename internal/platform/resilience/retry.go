package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/riskcore/riskcore/internal/platform/apperr"
)

// RetryConfig holds retry settings for calls to a retryable dependency.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff plus
// jitter between attempts. Permanent domain errors (validation, conflict,
// not-found, rate-limit) are returned immediately without further attempts.
// When all attempts fail, the last error is folded into a
// ServiceUnavailableError for dependency.
func Retry(ctx context.Context, cfg RetryConfig, dependency string, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff(cfg, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if apperr.IsPermanent(lastErr) {
			return lastErr
		}
	}

	return &apperr.ServiceUnavailableError{
		Dependency: dependency,
		Reason:     "retries exhausted: " + lastErr.Error(),
	}
}

// backoff computes the delay before the given attempt: BaseDelay doubled per
// attempt, capped at MaxDelay, plus up to one BaseDelay of jitter.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay << uint(attempt-1)
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(cfg.BaseDelay)))
	return delay + jitter
}
