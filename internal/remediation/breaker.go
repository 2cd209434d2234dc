package remediation

import (
	"fmt"
	"sync"
	"time"
)

// CircuitBreaker limits remediation rate with a sliding one-hour window and
// a per-process cooldown.
type CircuitBreaker struct {
	mu          sync.Mutex
	maxPerHour  int
	cooldown    time.Duration
	now         func() time.Time
	recentTimes []time.Time
	cooldowns   map[string]time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given limits.
// maxPerHour <= 0 disables the rate limit.
func NewCircuitBreaker(maxPerHour int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxPerHour: maxPerHour,
		cooldown:   cooldown,
		now:        time.Now,
		cooldowns:  make(map[string]time.Time),
	}
}

func processKey(pid int, name string) string {
	return fmt.Sprintf("%d/%s", pid, name)
}

// IsOpen returns true if the breaker has tripped (too many remediations this hour).
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.maxPerHour <= 0 {
		return false
	}
	cb.pruneOld()
	return len(cb.recentTimes) >= cb.maxPerHour
}

// IsOnCooldown returns true if the process was remediated within the cooldown.
func (cb *CircuitBreaker) IsOnCooldown(pid int, name string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	last, ok := cb.cooldowns[processKey(pid, name)]
	if !ok {
		return false
	}
	return cb.now().Sub(last) < cb.cooldown
}

// Record notes a real remediation run for rate limiting.
func (cb *CircuitBreaker) Record(pid int, name string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.now()
	cb.recentTimes = append(cb.recentTimes, now)
	cb.cooldowns[processKey(pid, name)] = now
}

// pruneOld drops window entries older than one hour and expired cooldowns.
func (cb *CircuitBreaker) pruneOld() {
	now := cb.now()
	cutoff := now.Add(-1 * time.Hour)
	i := 0
	for i < len(cb.recentTimes) && cb.recentTimes[i].Before(cutoff) {
		i++
	}
	cb.recentTimes = cb.recentTimes[i:]
	for k, t := range cb.cooldowns {
		if now.Sub(t) >= cb.cooldown {
			delete(cb.cooldowns, k)
		}
	}
}
