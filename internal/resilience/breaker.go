package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the operation while a breaker
// is open, or while its single half-open probe is in flight.
var ErrCircuitOpen = errors.New("circuit open")

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold  int           // Consecutive failures that open the circuit
	RecoveryThreshold int           // Consecutive half-open successes that close it
	Cooldown          time.Duration // Time after the last failure before a probe is allowed
}

// DefaultBreakerConfig returns 5 failures, 2 recoveries, 60s cooldown.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		RecoveryThreshold: 2,
		Cooldown:          60 * time.Second,
	}
}

// BreakerSnapshot is a point-in-time view of a breaker.
type BreakerSnapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// CircuitBreaker guards calls to one provider. In half-open state only one
// probe runs at a time; concurrent callers fail fast until it finishes.
type CircuitBreaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	probing     bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	defaults := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = defaults.RecoveryThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: logger.With("component", "circuit_breaker", "provider", name),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Name returns the guarded provider name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Execute runs op unless the circuit is open. A rejected call does not touch
// the failure timestamp, so fast-fails never extend the cooldown. A call the
// caller abandoned (cancelled or past the caller's own deadline) is not
// counted either way; an attempt timeout still counts as a failure.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) (err error) {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in guarded call: %v", r)
		}
		if err != nil && callerAbandoned(ctx, err) {
			b.release(probe)
			return
		}
		b.record(err, probe)
	}()

	return op(ctx)
}

// State returns the current state. Open only moves to HalfOpen when a call
// is admitted after the cooldown.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns counters for reporting.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		Successes:   b.successes,
		LastFailure: b.lastFailure,
	}
}

func (b *CircuitBreaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.cfg.Cooldown {
			return false, fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
		}
		b.transitionLocked(StateHalfOpen)
		b.successes = 0
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return false, fmt.Errorf("%w: %s probe in flight", ErrCircuitOpen, b.name)
		}
		b.probing = true
		return true, nil
	default:
		return false, nil
	}
}

// callerAbandoned reports whether err comes from the caller giving up rather
// than from the provider.
func callerAbandoned(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return errors.Is(err, context.Canceled)
	}
	var timeout *AttemptTimeoutError
	return !errors.As(context.Cause(ctx), &timeout)
}

// release frees the probe slot without touching the counters.
func (b *CircuitBreaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *CircuitBreaker) record(err error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}

	if err == nil {
		b.successes++
		switch b.state {
		case StateHalfOpen:
			if b.successes >= b.cfg.RecoveryThreshold {
				b.transitionLocked(StateClosed)
				b.failures = 0
				b.successes = 0
			}
		case StateClosed:
			b.failures = 0
		}
		return
	}

	b.lastFailure = b.now()
	b.failures++
	b.successes = 0

	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	}
}

func (b *CircuitBreaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	b.logger.Info("circuit state changed",
		"from", b.state.String(),
		"to", to.String(),
		"failures", b.failures,
	)
	b.state = to
}
