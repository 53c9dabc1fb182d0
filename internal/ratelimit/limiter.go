// Package ratelimit provides the weighted token bucket that enforces the
// exchange's per-minute API weight budget across every collector.
//
// The bucket refills continuously (rather than in one-minute bursts) so
// pollers spread their calls instead of stampeding at window boundaries.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token-bucket rate limiter with fractional tokens and
// weighted acquisition. Capacity is the configured share of the exchange
// budget; refill rate is capacity/60 per second.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxWeight  float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	acquired      int64
	denied        int64
	weightGranted float64
}

// New creates a limiter for maxWeightPerMin weight units per minute,
// derated to safetyPct percent. The bucket starts full.
func New(maxWeightPerMin int, safetyPct float64) *Limiter {
	maxWeight := float64(maxWeightPerMin) * safetyPct / 100
	return &Limiter{
		tokens:     maxWeight,
		maxWeight:  maxWeight,
		refillRate: maxWeight / 60,
		lastRefill: time.Now(),
	}
}

// refillLocked credits tokens for the monotonic time elapsed since the
// last refill, clamped at capacity. Caller holds mu.
func (l *Limiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxWeight {
		l.tokens = l.maxWeight
	}
	l.lastRefill = now
}

// Acquire blocks until weight tokens are available or the timeout
// expires, returning whether the weight was granted. A zero timeout makes
// exactly one attempt. Sleeps happen outside the lock so concurrent
// acquirers make independent progress.
func (l *Limiter) Acquire(weight float64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for {
		l.mu.Lock()
		l.refillLocked()

		if l.tokens >= weight {
			l.tokens -= weight
			l.acquired++
			l.weightGranted += weight
			l.mu.Unlock()
			return true
		}

		var estimated time.Duration
		if l.refillRate > 0 {
			estimated = time.Duration((weight - l.tokens) / l.refillRate * float64(time.Second))
		} else {
			// The bucket never refills; burn the deadline instead of spinning.
			estimated = timeout
		}
		l.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.mu.Lock()
			l.denied++
			l.mu.Unlock()
			return false
		}

		// Sleep half the estimated wait, capped at 1s and at the budget
		// left before the deadline.
		sleep := estimated / 2
		if sleep > time.Second {
			sleep = time.Second
		}
		if sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)
	}
}

// Available returns the current token balance after refill.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return l.tokens
}

// MaxWeight returns the bucket capacity.
func (l *Limiter) MaxWeight() float64 {
	return l.maxWeight
}

// Stats returns a snapshot of limiter counters for the stats endpoint.
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return map[string]interface{}{
		"available_weight": l.tokens,
		"max_weight":       l.maxWeight,
		"refill_per_sec":   l.refillRate,
		"acquired":         l.acquired,
		"denied":           l.denied,
		"weight_granted":   l.weightGranted,
	}
}
