// Package resilience provides the process-local reliability primitives used by
// the domain services: a fixed-window rate limiter, a per-dependency circuit
// breaker, a bounded TTL cache, and a retry helper with exponential backoff.
//
// All state is in-memory and scoped to a single instance. Multi-instance
// deployments need these maps externalized to a shared store; the types are
// small enough to hide behind interfaces at the call sites when that happens.
package resilience

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiterConfig holds fixed-window rate limiting settings.
type RateLimiterConfig struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultRateLimiterConfig returns the default window settings.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Window:      time.Minute,
		MaxRequests: 100,
	}
}

type window struct {
	count       int
	windowStart time.Time
}

// RateLimiter is a fixed-window counter keyed by caller identity. Windows are
// created lazily on first use and reset when the window duration elapses.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	cfg     RateLimiterConfig
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	return &RateLimiter{
		windows: make(map[string]*window),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Allow checks and counts one request for key. The counter is incremented
// exactly once per call, whether the request is admitted or rejected. When the
// request is rejected, retryAfter holds the seconds until the window resets.
func (l *RateLimiter) Allow(key string) (allowed bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.windowStart) > l.cfg.Window {
		w = &window{windowStart: now}
		l.windows[key] = w
	}

	w.count++
	if w.count > l.cfg.MaxRequests {
		remaining := l.cfg.Window - now.Sub(w.windowStart)
		return false, int(math.Ceil(remaining.Seconds()))
	}
	return true, 0
}

// Remaining reports how many requests key may still make in the current window.
func (l *RateLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().Sub(w.windowStart) > l.cfg.Window {
		return l.cfg.MaxRequests
	}
	left := l.cfg.MaxRequests - w.count
	if left < 0 {
		return 0
	}
	return left
}

// Reset drops the window for key.
func (l *RateLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

// StartCleanup runs a background goroutine that drops expired windows. It
// stops when the context is cancelled.
func (l *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.mu.Lock()
				now := l.now()
				for k, w := range l.windows {
					if now.Sub(w.windowStart) > l.cfg.Window {
						delete(l.windows, k)
					}
				}
				l.mu.Unlock()
			}
		}
	}()
}
