// Package resilience provides outbound call protection: a token bucket rate
// limiter, a per-provider circuit breaker and a retrying executor.
package resilience

import (
	"context"
	"math"
	"sync"
	"time"
)

// RateLimiterConfig configures a token bucket.
type RateLimiterConfig struct {
	Capacity        int
	RefillPerSecond float64
	PollInterval    time.Duration
}

// DefaultRateLimiterConfig returns the defaults used when nothing is configured.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Capacity:        10,
		RefillPerSecond: 1,
		PollInterval:    100 * time.Millisecond,
	}
}

// RateLimiter is a token bucket with lazy refill. There is no background timer:
// tokens are topped up on each check from the time elapsed since the last refill.
type RateLimiter struct {
	mu         sync.Mutex
	capacity   int
	rate       float64
	poll       time.Duration
	tokens     int
	lastRefill time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaults.Capacity
	}
	if cfg.RefillPerSecond <= 0 {
		cfg.RefillPerSecond = defaults.RefillPerSecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	l := &RateLimiter{
		capacity: cfg.Capacity,
		rate:     cfg.RefillPerSecond,
		poll:     cfg.PollInterval,
		tokens:   cfg.Capacity,
		now:      time.Now,
		sleep:    SleepContext,
	}
	l.lastRefill = l.now()
	return l
}

// Acquire blocks until a token is available and consumes it. It only returns
// an error when ctx is done while waiting.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		if l.TryAcquire() {
			return nil
		}
		if err := l.sleep(ctx, l.poll); err != nil {
			return err
		}
	}
}

// TryAcquire consumes a token if one is available.
func (l *RateLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	if l.tokens == 0 {
		return false
	}
	l.tokens--
	return true
}

// Available returns the current token count after refill.
func (l *RateLimiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	return l.tokens
}

// Capacity returns the bucket size.
func (l *RateLimiter) Capacity() int {
	return l.capacity
}

// refillLocked applies tokens = min(C, tokens + floor(elapsed*R)).
// lastRefill only advances by the whole tokens granted so fractional
// progress carries over to the next check.
func (l *RateLimiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	add := int(math.Floor(elapsed * l.rate))
	if add <= 0 {
		return
	}

	l.tokens += add
	if l.tokens >= l.capacity {
		l.tokens = l.capacity
		l.lastRefill = now
		return
	}
	l.lastRefill = l.lastRefill.Add(time.Duration(float64(add) / l.rate * float64(time.Second)))
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
