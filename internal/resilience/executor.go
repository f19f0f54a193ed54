package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// AttemptTimeoutError is returned when a single attempt exceeds the policy's
// per-attempt timeout.
type AttemptTimeoutError struct {
	Timeout time.Duration
}

func (e *AttemptTimeoutError) Error() string {
	return fmt.Sprintf("attempt timeout after %s", e.Timeout)
}

// ErrorCode implements Coder.
func (e *AttemptTimeoutError) ErrorCode() string {
	return "TIMEOUT"
}

func (e *AttemptTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// Result is the envelope returned by Run.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// Success reports whether the operation eventually succeeded.
func (r Result[T]) Success() bool {
	return r.Err == nil
}

// Executor retries operations according to a Policy. It is provider-agnostic:
// composing it with a CircuitBreaker is the caller's job (the breaker wraps the
// raw call, the executor wraps the breaker).
type Executor struct {
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		logger: logger.With("component", "executor"),
		sleep:  SleepContext,
	}
}

// Run attempts op up to policy.MaxAttempts times. Each attempt is raced
// against policy.AttemptTimeout. Non-retryable errors stop immediately.
func Run[T any](ctx context.Context, e *Executor, policy Policy, op func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	policy = policy.normalized()
	schedule := newDelaySchedule(policy)

	var res Result[T]
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		res.Attempts = attempt

		value, err := runAttempt(ctx, policy.AttemptTimeout, op)
		if err == nil {
			res.Value = value
			res.Err = nil
			res.Duration = time.Since(start)
			return res
		}
		res.Err = err

		if ctx.Err() != nil {
			break
		}
		if !policy.IsRetryable(err) {
			e.logger.Debug("non-retryable error, not retrying",
				"policy", policy.Name,
				"attempt", attempt,
				"error", err,
			)
			break
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := schedule.next()
		e.logger.Warn("retrying operation",
			"policy", policy.Name,
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := e.sleep(ctx, delay); err != nil {
			break
		}
	}

	res.Duration = time.Since(start)
	return res
}

type attemptOutcome[T any] struct {
	value T
	err   error
}

// runAttempt races op against the attempt timeout. The op goroutine gets a
// cancelled context when the timeout wins and its late result is discarded.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeoutCause(ctx, timeout, &AttemptTimeoutError{Timeout: timeout})
	defer cancel()

	done := make(chan attemptOutcome[T], 1)
	go func() {
		var out attemptOutcome[T]
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("panic in operation: %v", r)
			}
			done <- out
		}()
		out.value, out.err = op(attemptCtx)
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-attemptCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &AttemptTimeoutError{Timeout: timeout}
	}
}

// delaySchedule produces jittered exponential delays. The n-th call returns
// BaseDelay(n) with +/-JitterFactor uniform jitter, floored at MinDelay.
type delaySchedule struct {
	b *backoff.ExponentialBackOff
}

func newDelaySchedule(p Policy) *delaySchedule {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: JitterFactor,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return &delaySchedule{b: b}
}

func (s *delaySchedule) next() time.Duration {
	d := s.b.NextBackOff()
	if d < MinDelay {
		d = MinDelay
	}
	return d
}
