// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the chat core from abusive senders.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket: each command consumes one token, and one
// token regenerates every perToken duration up to the burst capacity.
type rateLimiter struct {
	mu       sync.Mutex
	tokens   int
	burst    int
	perToken time.Duration
	refilled time.Time
}

// newRateLimiter returns a full bucket that regenerates burst tokens per
// interval.
func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	perToken := interval / time.Duration(burst)
	if perToken <= 0 {
		perToken = time.Nanosecond
	}

	return &rateLimiter{
		tokens:   burst,
		burst:    burst,
		perToken: perToken,
		refilled: time.Now(),
	}
}

// allow consumes a token if one is available.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if regained := int(now.Sub(rl.refilled) / rl.perToken); regained > 0 {
		rl.tokens += regained
		if rl.tokens >= rl.burst {
			rl.tokens = rl.burst
			rl.refilled = now
		} else {
			// Advance by whole tokens only, so the fractional remainder
			// keeps accruing toward the next one.
			rl.refilled = rl.refilled.Add(time.Duration(regained) * rl.perToken)
		}
	}

	if rl.tokens == 0 {
		return false
	}
	rl.tokens--
	return true
}
