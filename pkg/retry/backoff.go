package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before retry number attempt (1-based)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	// BaseDelay is the initial delay duration
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor adds randomness to avoid thundering herd (0.0 to 1.0)
	JitterFactor float64
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := eb.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(eb.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	return jitter(delay, eb.JitterFactor)
}

// LinearBackoff grows the delay by a fixed increment per attempt
type LinearBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Increment    time.Duration
	JitterFactor float64
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))
	if lb.MaxDelay > 0 && delay > float64(lb.MaxDelay) {
		delay = float64(lb.MaxDelay)
	}

	return jitter(delay, lb.JitterFactor)
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

func jitter(delay, factor float64) time.Duration {
	if factor > 0 {
		spread := delay * factor
		delay += (rand.Float64() * 2 * spread) - spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
