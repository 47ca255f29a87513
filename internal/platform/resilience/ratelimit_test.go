package resilience

import (
	"testing"
	"time"
)

func TestRateLimiterAdmitsUpToMax(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{Window: time.Minute, MaxRequests: 3})
	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("caller-1")
		if !allowed {
			t.Fatalf("request %d rejected, want admitted", i+1)
		}
	}
}

func TestRateLimiterRejectsOverMax(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{Window: time.Minute, MaxRequests: 3})
	for i := 0; i < 3; i++ {
		l.Allow("caller-1")
	}

	allowed, retryAfter := l.Allow("caller-1")
	if allowed {
		t.Fatal("4th request admitted, want rejected")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within (0, 60]", retryAfter)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{Window: time.Minute, MaxRequests: 2})
	base := time.Now()
	l.now = func() time.Time { return base }

	l.Allow("caller-1")
	l.Allow("caller-1")
	if allowed, _ := l.Allow("caller-1"); allowed {
		t.Fatal("request over max admitted inside window")
	}

	// First request of the next window is accepted.
	l.now = func() time.Time { return base.Add(61 * time.Second) }
	if allowed, _ := l.Allow("caller-1"); !allowed {
		t.Fatal("first request of new window rejected")
	}
}

func TestRateLimiterKeysIndependent(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{Window: time.Minute, MaxRequests: 1})
	l.Allow("caller-1")
	if allowed, _ := l.Allow("caller-2"); !allowed {
		t.Error("caller-2 rejected by caller-1's window")
	}
}

func TestRateLimiterRemaining(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{Window: time.Minute, MaxRequests: 5})
	if got := l.Remaining("caller-1"); got != 5 {
		t.Errorf("Remaining before any request = %d, want 5", got)
	}
	l.Allow("caller-1")
	l.Allow("caller-1")
	if got := l.Remaining("caller-1"); got != 3 {
		t.Errorf("Remaining after 2 requests = %d, want 3", got)
	}
}
