package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errProvider = errors.New("provider failed")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	b := NewCircuitBreaker("gemini", DefaultBreakerConfig(), testLogger())
	b.now = clock.Now
	return b
}

func fail(ctx context.Context) error    { return errProvider }
func succeed(ctx context.Context) error { return nil }

func tripBreaker(t *testing.T, b *CircuitBreaker) {
	t.Helper()
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	if b.State() != StateOpen {
		t.Fatalf("State() = %s after 5 failures, want open", b.State())
	}
}

// ========================================
// State Transition Tests
// ========================================

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		if err := b.Execute(context.Background(), fail); !errors.Is(err, errProvider) {
			t.Fatalf("call %d error = %v, want provider error", i+1, err)
		}
		if b.State() != StateClosed {
			t.Fatalf("State() = %s after %d failures, want closed", b.State(), i+1)
		}
	}

	_ = b.Execute(context.Background(), fail)
	if b.State() != StateOpen {
		t.Errorf("State() = %s, want open", b.State())
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	_ = b.Execute(context.Background(), succeed)
	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), fail)
	}

	if b.State() != StateClosed {
		t.Errorf("State() = %s, want closed (failures were not consecutive)", b.State())
	}
}

func TestCircuitBreaker_OpenFailsFastWithoutInvoking(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)

	clock.Advance(30 * time.Second)

	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Error("operation must not run while circuit is open")
	}
}

func TestCircuitBreaker_FastFailDoesNotResetCooldown(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)
	lastFailure := b.Snapshot().LastFailure

	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second)
		_ = b.Execute(context.Background(), succeed)
	}

	if !b.Snapshot().LastFailure.Equal(lastFailure) {
		t.Error("circuit-open rejections must not move the last failure timestamp")
	}

	// 50s so far; 10 more reaches the 60s cooldown.
	clock.Advance(10 * time.Second)
	invoked := false
	_ = b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !invoked {
		t.Error("operation should run once the cooldown has elapsed")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)

	clock.Advance(61 * time.Second)

	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("State() = %s after one probe success, want half_open", b.State())
	}

	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("second probe error = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %s after two probe successes, want closed", b.State())
	}

	snap := b.Snapshot()
	if snap.Failures != 0 || snap.Successes != 0 {
		t.Errorf("counters should reset on close, got failures=%d successes=%d", snap.Failures, snap.Successes)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)

	clock.Advance(61 * time.Second)
	_ = b.Execute(context.Background(), succeed)
	_ = b.Execute(context.Background(), fail)

	if b.State() != StateOpen {
		t.Errorf("State() = %s, want open after half-open failure", b.State())
	}

	// Cooldown restarts from the probe failure.
	clock.Advance(30 * time.Second)
	if err := b.Execute(context.Background(), succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SingleProbeInFlight(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)
	clock.Advance(61 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := b.Execute(context.Background(), succeed)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("concurrent half-open call error = %v, want ErrCircuitOpen", err)
	}

	close(release)
	wg.Wait()

	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Errorf("next probe after release error = %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %s, want closed", b.State())
	}
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected error from panicking operation")
	}
	if b.Snapshot().Failures != 1 {
		t.Errorf("Failures = %d, want 1", b.Snapshot().Failures)
	}
}

// ========================================
// Caller Cancellation Tests
// ========================================

func TestCircuitBreaker_CallerAbandonDoesNotCount(t *testing.T) {
	waitForCaller := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		op   func(context.Context) error
	}{
		{
			name: "caller cancelled mid-call",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(5*time.Millisecond, cancel)
				return ctx, cancel
			},
			op: waitForCaller,
		},
		{
			name: "caller deadline passed",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 5*time.Millisecond)
			},
			op: waitForCaller,
		},
		{
			name: "canceled error on live context",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			op: func(context.Context) error { return fmt.Errorf("read body: %w", context.Canceled) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBreaker(newFakeClock())
			for i := 0; i < 6; i++ {
				ctx, cancel := tt.ctx()
				if err := b.Execute(ctx, tt.op); err == nil {
					t.Fatal("Execute() error = nil, want the caller's error")
				}
				cancel()
			}
			snap := b.Snapshot()
			if snap.State != StateClosed.String() || snap.Failures != 0 {
				t.Errorf("Snapshot() = %+v, want closed with no failures", snap)
			}
			if err := b.Execute(context.Background(), succeed); err != nil {
				t.Errorf("healthy call error = %v", err)
			}
		})
	}
}

func TestCircuitBreaker_AttemptTimeoutCounts(t *testing.T) {
	b := newTestBreaker(newFakeClock())

	ctx, cancel := context.WithTimeoutCause(context.Background(), 5*time.Millisecond, &AttemptTimeoutError{Timeout: 5 * time.Millisecond})
	defer cancel()
	err := b.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute() error = %v, want deadline exceeded", err)
	}
	if got := b.Snapshot().Failures; got != 1 {
		t.Errorf("Failures = %d, want 1", got)
	}
}

func TestCircuitBreaker_AbandonedProbeFreesSlot(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)
	tripBreaker(t, b)
	clock.Advance(61 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })

	if b.State() != StateHalfOpen {
		t.Fatalf("State() = %s after abandoned probe, want half_open", b.State())
	}
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Errorf("next probe error = %v, want admitted", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}
