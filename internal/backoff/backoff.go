// Package backoff centralizes retry-delay calculation for the client.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before retry number attempt (0-based).
type Strategy interface {
	Calculate(attempt int, base, max time.Duration, jitter float64) time.Duration
}

// Exponential is pure exponential backoff: base * 2^attempt, capped at max.
// It ignores the jitter parameter, so delays are deterministic and strictly
// increasing until the cap.
type Exponential struct{}

func (Exponential) Calculate(attempt int, base, max time.Duration, _ float64) time.Duration {
	return capped(attempt, base, max)
}

// ExponentialJitter adds uniform jitter on top of Exponential to spread
// synchronized retries. jitter is a fraction of the computed delay in [0, 1].
type ExponentialJitter struct{}

func (ExponentialJitter) Calculate(attempt int, base, max time.Duration, jitter float64) time.Duration {
	d := capped(attempt, base, max)
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	if jitter > 0 {
		d += time.Duration(float64(d) * jitter * rand.Float64())
		if d > max {
			d = max
		}
	}
	return d
}

func capped(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Shifting past 62 bits would overflow; everything that large caps anyway.
	if attempt > 30 {
		return max
	}
	d := base << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Calculator binds a strategy to its parameters.
type Calculator struct {
	strategy Strategy
	base     time.Duration
	max      time.Duration
	jitter   float64
}

// NewCalculator creates a calculator using the given strategy.
func NewCalculator(strategy Strategy, base, max time.Duration, jitter float64) *Calculator {
	return &Calculator{strategy: strategy, base: base, max: max, jitter: jitter}
}

// Delay returns the delay before retry number attempt (0-based).
func (c *Calculator) Delay(attempt int) time.Duration {
	return c.strategy.Calculate(attempt, c.base, c.max, c.jitter)
}
