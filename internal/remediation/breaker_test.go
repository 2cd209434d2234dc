package remediation

import (
	"testing"
	"time"
)

func TestCircuitBreakerSlidingWindow(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Minute)

	cb.Record(1, "a")
	cb.Record(2, "b")
	cb.Record(3, "c")

	if !cb.IsOpen() {
		t.Error("circuit breaker should be open after 3 remediations (max=3)")
	}
}

func TestCircuitBreakerBoundary(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Minute)

	cb.Record(1, "a")
	if cb.IsOpen() {
		t.Error("should not be open at 1/2")
	}
	cb.Record(2, "b")
	if !cb.IsOpen() {
		t.Error("should be open at 2/2")
	}
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(0, time.Minute)
	cb.Record(1, "a")
	if cb.IsOpen() {
		t.Error("maxPerHour=0 should disable the rate limit")
	}
}

func TestPerProcessCooldown(t *testing.T) {
	cb := NewCircuitBreaker(100, 30*time.Minute)
	cb.Record(42, "stress")

	if !cb.IsOnCooldown(42, "stress") {
		t.Error("process should be on cooldown immediately after recording")
	}
	if cb.IsOnCooldown(43, "stress") {
		t.Error("different pid should not be on cooldown")
	}
	if cb.IsOnCooldown(42, "other") {
		t.Error("reused pid with a different name should not be on cooldown")
	}
}

func TestCircuitBreakerExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 10*time.Minute)
	cb.now = func() time.Time { return now }

	cb.Record(1, "a")
	cb.Record(2, "b")
	if !cb.IsOpen() {
		t.Fatal("should be open")
	}

	now = now.Add(61 * time.Minute)
	if cb.IsOpen() {
		t.Error("circuit breaker should close after old entries expire")
	}
	if cb.IsOnCooldown(1, "a") {
		t.Error("cooldown should have expired")
	}
}
