package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter
	Reset()
}

// TokenBucket is a limiter holding up to capacity tokens, refilled
// continuously at one token per interval.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	interval   time.Duration
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket of capacity tokens refilled at one
// token per interval.
func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		interval:   interval,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// NewPerMinute creates a bucket allowing perMinute requests a minute with
// bursts of up to burst requests.
func NewPerMinute(perMinute, burst int) *TokenBucket {
	if perMinute < 1 {
		perMinute = 1
	}
	return NewTokenBucket(burst, time.Minute/time.Duration(perMinute))
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		timer := time.NewTimer(tb.untilNextToken())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
}

func (tb *TokenBucket) untilNextToken() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	missing := 1 - tb.tokens
	if missing <= 0 || tb.interval <= 0 {
		return time.Millisecond
	}
	return time.Duration(missing * float64(tb.interval))
}

// refill adds tokens for the time elapsed since the last refill
func (tb *TokenBucket) refill() {
	now := tb.now()
	if tb.interval <= 0 {
		tb.tokens = tb.capacity
		tb.lastRefill = now
		return
	}

	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens += float64(elapsed) / float64(tb.interval)
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
