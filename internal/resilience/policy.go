package resilience

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

const (
	// JitterFactor is the uniform jitter applied around each backoff delay.
	JitterFactor = 0.25

	// MinDelay is the floor for any jittered delay.
	MinDelay = 100 * time.Millisecond
)

// DefaultRetryableSignatures are matched case-insensitively against an error's
// code and message.
var DefaultRetryableSignatures = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"rate_limit",
	"too many requests",
	"resource_exhausted",
	"status: 429",
	"status: 500",
	"status: 502",
	"status: 503",
	"status: 504",
	"server_error",
	"service unavailable",
	"unavailable",
	"overloaded",
	"connection reset",
	"connection refused",
	"unexpected eof",
}

// Policy controls how an operation is retried.
type Policy struct {
	Name                string
	MaxAttempts         int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	Multiplier          float64
	AttemptTimeout      time.Duration
	RetryableSignatures []string
}

// DefaultPolicy is used for ordinary generations.
func DefaultPolicy() Policy {
	return Policy{
		Name:                "default",
		MaxAttempts:         3,
		InitialDelay:        1 * time.Second,
		MaxDelay:            10 * time.Second,
		Multiplier:          2,
		AttemptTimeout:      120 * time.Second,
		RetryableSignatures: DefaultRetryableSignatures,
	}
}

// PriorityPolicy has a larger budget for paid operations. Only the numbers
// differ from DefaultPolicy.
func PriorityPolicy() Policy {
	return Policy{
		Name:                "priority",
		MaxAttempts:         5,
		InitialDelay:        2 * time.Second,
		MaxDelay:            30 * time.Second,
		Multiplier:          2,
		AttemptTimeout:      300 * time.Second,
		RetryableSignatures: DefaultRetryableSignatures,
	}
}

// normalized fills zero values from DefaultPolicy and enforces
// MaxAttempts >= 1, Multiplier > 1 and InitialDelay <= MaxDelay.
func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.InitialDelay > p.MaxDelay {
		p.InitialDelay = p.MaxDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = d.Multiplier
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	if p.RetryableSignatures == nil {
		p.RetryableSignatures = DefaultRetryableSignatures
	}
	return p
}

// BaseDelay returns the pre-jitter delay after the given failed attempt
// (1-based): min(MaxDelay, InitialDelay * Multiplier^(attempt-1)).
func BaseDelay(p Policy, attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d >= float64(p.MaxDelay) || math.IsInf(d, 1) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Coder is implemented by errors that carry a machine-readable code.
type Coder interface {
	ErrorCode() string
}

// IsRetryable reports whether err matches one of the policy's retryable
// signatures. Circuit-open errors are never retryable.
func (p Policy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var code string
	var coder Coder
	if errors.As(err, &coder) {
		code = strings.ToLower(coder.ErrorCode())
	}
	msg := strings.ToLower(err.Error())

	signatures := p.RetryableSignatures
	if signatures == nil {
		signatures = DefaultRetryableSignatures
	}
	for _, sig := range signatures {
		s := strings.ToLower(sig)
		if s == "" {
			continue
		}
		if (code != "" && strings.Contains(code, s)) || strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
