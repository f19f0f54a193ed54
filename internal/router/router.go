// Package router selects an image provider for a request and falls back
// along an ordered preference list when it fails.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/provider"
	"github.com/lukas-andre/decollage-cl-sub000/internal/resilience"
)

// DefaultMaxHops tries the selected provider plus one fallback.
const DefaultMaxHops = 2

// ErrNoProviders is returned when the router has nothing to call.
var ErrNoProviders = errors.New("no providers configured")

// Config controls routing and the per-provider resilience state.
type Config struct {
	// Order is the fallback preference list. Providers missing from it are
	// appended in registration order.
	Order []string

	// QualityProvider serves custom styles, high quality and the default case.
	QualityProvider string

	// MaxHops bounds how many distinct providers one call may try.
	MaxHops int

	// FallbackDelay is waited before each fallback hop.
	FallbackDelay time.Duration

	Breaker   resilience.BreakerConfig
	RateLimit resilience.RateLimiterConfig
}

// Router owns one circuit breaker and one rate limiter per provider.
type Router struct {
	providers     map[string]provider.Provider
	order         []string
	quality       string
	maxHops       int
	fallbackDelay time.Duration

	breakers map[string]*resilience.CircuitBreaker
	limiters map[string]*resilience.RateLimiter
	executor *resilience.Executor
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a router over the given providers.
func New(providers []provider.Provider, cfg Config, executor *resilience.Executor, logger *slog.Logger) (*Router, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = resilience.NewExecutor(logger)
	}
	if cfg.MaxHops < 1 {
		cfg.MaxHops = DefaultMaxHops
	}

	r := &Router{
		providers:     make(map[string]provider.Provider, len(providers)),
		maxHops:       cfg.MaxHops,
		fallbackDelay: cfg.FallbackDelay,
		breakers:      make(map[string]*resilience.CircuitBreaker, len(providers)),
		limiters:      make(map[string]*resilience.RateLimiter, len(providers)),
		executor:      executor,
		logger:        logger.With("component", "router"),
		sleep:         resilience.SleepContext,
	}

	var registered []string
	for _, p := range providers {
		name := p.Name()
		if _, dup := r.providers[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		r.providers[name] = p
		r.breakers[name] = resilience.NewCircuitBreaker(name, cfg.Breaker, logger)
		r.limiters[name] = resilience.NewRateLimiter(cfg.RateLimit)
		registered = append(registered, name)
	}

	seen := make(map[string]bool, len(registered))
	for _, name := range cfg.Order {
		name = strings.TrimSpace(name)
		if _, ok := r.providers[name]; !ok || seen[name] {
			continue
		}
		r.order = append(r.order, name)
		seen[name] = true
	}
	for _, name := range registered {
		if !seen[name] {
			r.order = append(r.order, name)
		}
	}

	r.quality = cfg.QualityProvider
	if _, ok := r.providers[r.quality]; !ok {
		r.quality = r.order[0]
	}

	return r, nil
}

// Has reports whether a provider with this name is registered.
func (r *Router) Has(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// Order returns the fallback preference list.
func (r *Router) Order() []string {
	return append([]string(nil), r.order...)
}

// SelectProvider picks the first provider for a request: an explicit override
// wins, then custom style or high quality selects the quality provider, and
// otherwise the quality provider is the default.
func (r *Router) SelectProvider(req *models.GenerationRequest) string {
	if req.Provider != "" {
		if _, ok := r.providers[req.Provider]; ok {
			return req.Provider
		}
	}
	// Custom styles and high quality need the quality provider. It is also the
	// default, so speed only wins through an explicit override.
	return r.quality
}

// Chain returns the providers tried for a call starting at selected, bounded
// by MaxHops.
func (r *Router) Chain(selected string) []string {
	chain := make([]string, 0, r.maxHops)
	if _, ok := r.providers[selected]; ok {
		chain = append(chain, selected)
	}
	for _, name := range r.order {
		if len(chain) >= r.maxHops {
			break
		}
		if name != selected {
			chain = append(chain, name)
		}
	}
	return chain
}

// Admit blocks until the named provider's rate limiter grants a token.
func (r *Router) Admit(ctx context.Context, name string) error {
	l, ok := r.limiters[name]
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	return l.Acquire(ctx)
}

// Request is one provider call.
type Request struct {
	Image   *models.ImageInput
	Prompt  string
	Options provider.Options
}

// Outcome is a successful routed call.
type Outcome struct {
	Output   *provider.Output
	Provider string
	Attempts int
	Tried    []string
	Duration time.Duration
}

// HopError is the terminal failure of one provider in the chain.
type HopError struct {
	Provider string
	Attempts int
	Err      error
}

// ExhaustedError is returned when every provider in the chain failed.
type ExhaustedError struct {
	Tried    []string
	Hops     []HopError
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers failed (tried %s): %v", strings.Join(e.Tried, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// AllCircuitOpen reports whether every hop was skipped by an open breaker.
func (e *ExhaustedError) AllCircuitOpen() bool {
	if len(e.Hops) == 0 {
		return false
	}
	for _, h := range e.Hops {
		if !errors.Is(h.Err, resilience.ErrCircuitOpen) {
			return false
		}
	}
	return true
}

// Call runs the request against the chain starting at selected. Each hop is
// retried by the executor under policy, with the provider's breaker wrapping
// every attempt. The caller admits the first hop through Admit; fallback hops
// are admitted here.
func (r *Router) Call(ctx context.Context, selected string, req Request, policy resilience.Policy) (*Outcome, error) {
	start := time.Now()
	chain := r.Chain(selected)
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	exhausted := &ExhaustedError{}
	for i, name := range chain {
		if i > 0 {
			r.logger.Info("falling back to next provider",
				"from", chain[i-1],
				"to", name,
				"hop", i+1,
				"max_hops", len(chain),
				"error", exhausted.Last,
			)
			if r.fallbackDelay > 0 {
				if err := r.sleep(ctx, r.fallbackDelay); err != nil {
					break
				}
			}
			if err := r.Admit(ctx, name); err != nil {
				break
			}
		}

		exhausted.Tried = append(exhausted.Tried, name)
		res := r.callProvider(ctx, name, req, policy)
		exhausted.Attempts += res.Attempts

		if res.Success() {
			return &Outcome{
				Output:   res.Value,
				Provider: name,
				Attempts: exhausted.Attempts,
				Tried:    exhausted.Tried,
				Duration: time.Since(start),
			}, nil
		}

		exhausted.Hops = append(exhausted.Hops, HopError{Provider: name, Attempts: res.Attempts, Err: res.Err})
		exhausted.Last = res.Err

		if ctx.Err() != nil {
			break
		}
	}

	if exhausted.Last == nil {
		exhausted.Last = ctx.Err()
	}
	r.logger.Error("all providers failed",
		"tried", exhausted.Tried,
		"attempts", exhausted.Attempts,
		"error", exhausted.Last,
	)
	return nil, exhausted
}

func (r *Router) callProvider(ctx context.Context, name string, req Request, policy resilience.Policy) resilience.Result[*provider.Output] {
	p := r.providers[name]
	breaker := r.breakers[name]

	return resilience.Run(ctx, r.executor, policy, func(ctx context.Context) (*provider.Output, error) {
		var out *provider.Output
		err := breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			out, err = p.GenerateStaging(ctx, req.Image, req.Prompt, req.Options)
			return err
		})
		return out, err
	})
}

// Status is a provider's static info plus live resilience state.
type Status struct {
	Info            provider.Info              `json:"info"`
	Breaker         resilience.BreakerSnapshot `json:"breaker"`
	AvailableTokens int                        `json:"available_tokens"`
	Fallback        int                        `json:"fallback_rank"`
}

// Statuses returns every provider in preference order.
func (r *Router) Statuses() []Status {
	out := make([]Status, 0, len(r.order))
	for i, name := range r.order {
		out = append(out, Status{
			Info:            r.providers[name].GetInfo(),
			Breaker:         r.breakers[name].Snapshot(),
			AvailableTokens: r.limiters[name].Available(),
			Fallback:        i,
		})
	}
	return out
}

// Provider returns the registered provider with this name.
func (r *Router) Provider(name string) (provider.Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}
