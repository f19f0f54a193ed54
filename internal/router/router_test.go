package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/provider"
	"github.com/lukas-andre/decollage-cl-sub000/internal/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider returns queued errors first, then succeeds.
type scriptedProvider struct {
	name string

	mu     sync.Mutex
	calls  int
	errs   []error
	always error
}

func newScripted(name string, errs ...error) *scriptedProvider {
	return &scriptedProvider{name: name, errs: errs}
}

func (p *scriptedProvider) Name() string                        { return p.name }
func (p *scriptedProvider) TestConnection(context.Context) bool { return true }
func (p *scriptedProvider) GetInfo() provider.Info {
	return provider.Info{Name: p.name, CostPerImage: 0.01, MaxBatchSize: 1}
}

func (p *scriptedProvider) GenerateStaging(ctx context.Context, image *models.ImageInput, prompt string, opts provider.Options) (*provider.Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.always != nil {
		return nil, p.always
	}
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	return &provider.Output{
		Images: []models.GeneratedImage{{URL: "https://img/" + p.name}},
		Model:  p.name + "-model",
	}, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func retryable(name string) error {
	return provider.Classify(errors.New("service busy"), name, "", 503)
}

func contentPolicy(name string) error {
	return provider.Classify(errors.New("blocked by safety"), name, "", 400)
}

func singleAttempt() resilience.Policy {
	p := resilience.DefaultPolicy()
	p.MaxAttempts = 1
	p.AttemptTimeout = time.Second
	return p
}

func newTestRouter(t *testing.T, cfg Config, providers ...provider.Provider) *Router {
	t.Helper()
	r, err := New(providers, cfg, resilience.NewExecutor(testLogger()), testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

// ========================================
// Construction Tests
// ========================================

func TestNew(t *testing.T) {
	t.Run("no providers", func(t *testing.T) {
		if _, err := New(nil, Config{}, nil, testLogger()); !errors.Is(err, ErrNoProviders) {
			t.Errorf("error = %v, want ErrNoProviders", err)
		}
	})

	t.Run("duplicate provider", func(t *testing.T) {
		_, err := New([]provider.Provider{newScripted("a"), newScripted("a")}, Config{}, nil, testLogger())
		if err == nil {
			t.Error("expected duplicate provider error")
		}
	})

	t.Run("order dedupes and appends unlisted", func(t *testing.T) {
		r := newTestRouter(t, Config{Order: []string{"c", "unknown", "a", "c"}},
			newScripted("a"), newScripted("b"), newScripted("c"))
		got := r.Order()
		want := []string{"c", "a", "b"}
		if len(got) != len(want) {
			t.Fatalf("Order() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Order()[%d] = %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("unknown quality provider falls back to first in order", func(t *testing.T) {
		r := newTestRouter(t, Config{Order: []string{"fal", "gemini"}, QualityProvider: "dalle"},
			newScripted("gemini"), newScripted("fal"))
		if got := r.SelectProvider(&models.GenerationRequest{}); got != "fal" {
			t.Errorf("SelectProvider() = %s, want fal", got)
		}
	})
}

// ========================================
// Selection Tests
// ========================================

func TestSelectProvider(t *testing.T) {
	r := newTestRouter(t, Config{Order: []string{"gemini", "fal"}, QualityProvider: "gemini"},
		newScripted("gemini"), newScripted("fal"))

	tests := []struct {
		name     string
		req      models.GenerationRequest
		expected string
	}{
		{"explicit override", models.GenerationRequest{Provider: "fal", Quality: models.QualityHigh}, "fal"},
		{"unknown override ignored", models.GenerationRequest{Provider: "midjourney"}, "gemini"},
		{"custom style", models.GenerationRequest{CustomStyleID: "cs-1"}, "gemini"},
		{"high quality", models.GenerationRequest{Quality: models.QualityHigh}, "gemini"},
		{"default", models.GenerationRequest{StyleID: "modern"}, "gemini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.SelectProvider(&tt.req); got != tt.expected {
				t.Errorf("SelectProvider() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestChain(t *testing.T) {
	providers := []provider.Provider{newScripted("gemini"), newScripted("fal"), newScripted("replicate")}

	tests := []struct {
		name     string
		maxHops  int
		selected string
		expected []string
	}{
		{"default single fallback", 0, "fal", []string{"fal", "gemini"}},
		{"one hop", 1, "fal", []string{"fal"}},
		{"three hops", 3, "fal", []string{"fal", "gemini", "replicate"}},
		{"hops beyond providers", 10, "gemini", []string{"gemini", "fal", "replicate"}},
		{"unknown selected uses order", 2, "nope", []string{"gemini", "fal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, Config{Order: []string{"gemini", "fal", "replicate"}, MaxHops: tt.maxHops}, providers...)
			got := r.Chain(tt.selected)
			if len(got) != len(tt.expected) {
				t.Fatalf("Chain() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Chain()[%d] = %s, want %s", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

// ========================================
// Call Tests
// ========================================

func TestCall_PrimarySucceeds(t *testing.T) {
	gemini, fal := newScripted("gemini"), newScripted("fal")
	r := newTestRouter(t, Config{Order: []string{"gemini", "fal"}}, gemini, fal)

	out, err := r.Call(context.Background(), "gemini", Request{Prompt: "p"}, singleAttempt())
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if out.Provider != "gemini" || len(out.Tried) != 1 || out.Attempts != 1 {
		t.Errorf("Outcome = %+v", out)
	}
	if fal.Calls() != 0 {
		t.Error("fallback provider should not be called")
	}
}

func TestCall_NonRetryableFallsBackOnce(t *testing.T) {
	gemini := newScripted("gemini", contentPolicy("gemini"))
	fal := newScripted("fal")
	r := newTestRouter(t, Config{Order: []string{"gemini", "fal"}}, gemini, fal)

	policy := singleAttempt()
	policy.MaxAttempts = 3

	out, err := r.Call(context.Background(), "gemini", Request{Prompt: "p"}, policy)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if out.Provider != "fal" {
		t.Errorf("Provider = %s, want fal", out.Provider)
	}
	if gemini.Calls() != 1 {
		t.Errorf("non-retryable error should not consume retries, gemini calls = %d", gemini.Calls())
	}
	if len(out.Tried) != 2 || out.Tried[0] != "gemini" || out.Tried[1] != "fal" {
		t.Errorf("Tried = %v", out.Tried)
	}
}

func TestCall_BothFailTriesExactlyTwoProviders(t *testing.T) {
	gemini, fal, replicate := newScripted("gemini"), newScripted("fal"), newScripted("replicate")
	gemini.always = retryable("gemini")
	fal.always = retryable("fal")
	r := newTestRouter(t, Config{Order: []string{"gemini", "fal", "replicate"}}, gemini, fal, replicate)

	policy := singleAttempt()
	policy.MaxAttempts = 2
	policy.InitialDelay = time.Millisecond

	_, err := r.Call(context.Background(), "gemini", Request{Prompt: "p"}, policy)

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want ExhaustedError", err)
	}
	if len(exhausted.Tried) != 2 {
		t.Errorf("Tried = %v, want exactly 2 providers", exhausted.Tried)
	}
	if replicate.Calls() != 0 {
		t.Error("third provider must not be called with the default max hops")
	}
	// Each hop has its own retry budget.
	if gemini.Calls() != 2 || fal.Calls() != 2 {
		t.Errorf("calls gemini=%d fal=%d, want 2 each", gemini.Calls(), fal.Calls())
	}
	if exhausted.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", exhausted.Attempts)
	}
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Error("ExhaustedError should unwrap to the last provider error")
	}
	if exhausted.AllCircuitOpen() {
		t.Error("AllCircuitOpen() = true, want false")
	}
}

func TestCall_CircuitOpenSkipsWithoutNetworkCall(t *testing.T) {
	gemini, fal := newScripted("gemini"), newScripted("fal")
	gemini.always = contentPolicy("gemini")
	cfg := Config{
		Order:   []string{"gemini", "fal"},
		Breaker: resilience.BreakerConfig{FailureThreshold: 1, RecoveryThreshold: 1, Cooldown: time.Hour},
	}
	r := newTestRouter(t, cfg, gemini, fal)

	// First call trips the gemini breaker and falls back.
	if _, err := r.Call(context.Background(), "gemini", Request{Prompt: "p"}, singleAttempt()); err != nil {
		t.Fatalf("first Call() error = %v", err)
	}
	if gemini.Calls() != 1 {
		t.Fatalf("gemini calls = %d, want 1", gemini.Calls())
	}

	out, err := r.Call(context.Background(), "gemini", Request{Prompt: "p"}, singleAttempt())
	if err != nil {
		t.Fatalf("second Call() error = %v", err)
	}
	if gemini.Calls() != 1 {
		t.Errorf("open breaker must not invoke the provider, calls = %d", gemini.Calls())
	}
	if out.Provider != "fal" || len(out.Tried) != 2 {
		t.Errorf("Outcome = %+v, circuit-open hop should still count as tried", out)
	}
}

func TestCall_AllCircuitOpen(t *testing.T) {
	gemini, fal := newScripted("gemini"), newScripted("fal")
	gemini.always = contentPolicy("gemini")
	fal.always = contentPolicy("fal")
	cfg := Config{
		Order:   []string{"gemini", "fal"},
		Breaker: resilience.BreakerConfig{FailureThreshold: 1, RecoveryThreshold: 1, Cooldown: time.Hour},
	}
	r := newTestRouter(t, cfg, gemini, fal)

	_, _ = r.Call(context.Background(), "gemini", Request{Prompt: "p"}, singleAttempt())
	_, err := r.Call(context.Background(), "gemini", Request{Prompt: "p"}, singleAttempt())

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || !exhausted.AllCircuitOpen() {
		t.Errorf("error = %v, want ExhaustedError with every hop circuit-open", err)
	}
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Error("error should unwrap to ErrCircuitOpen")
	}
}

func TestCall_FallbackDelayAndAdmission(t *testing.T) {
	gemini, fal := newScripted("gemini", contentPolicy("gemini")), newScripted("fal")
	cfg := Config{
		Order:         []string{"gemini", "fal"},
		FallbackDelay: 750 * time.Millisecond,
		RateLimit:     resilience.RateLimiterConfig{Capacity: 3, RefillPerSecond: 0.001},
	}
	r := newTestRouter(t, cfg, gemini, fal)

	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	before := r.limiters["fal"].Available()
	if _, err := r.Call(context.Background(), "gemini", Request{Prompt: "p"}, singleAttempt()); err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	if len(slept) != 1 || slept[0] != 750*time.Millisecond {
		t.Errorf("fallback sleeps = %v, want [750ms]", slept)
	}
	if got := r.limiters["fal"].Available(); got != before-1 {
		t.Errorf("fallback hop should consume a fal token: before %d after %d", before, got)
	}
}

func TestCall_CancelledContextStopsChain(t *testing.T) {
	gemini, fal := newScripted("gemini"), newScripted("fal")
	ctx, cancel := context.WithCancel(context.Background())
	gemini.always = retryable("gemini")
	r := newTestRouter(t, Config{Order: []string{"gemini", "fal"}}, gemini, fal)
	r.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	cancel()

	_, err := r.Call(ctx, "gemini", Request{Prompt: "p"}, singleAttempt())
	if err == nil {
		t.Fatal("expected error")
	}
	if fal.Calls() != 0 {
		t.Error("no fallback after caller cancellation")
	}
}

// hangingProvider blocks until its context ends while hang is set.
type hangingProvider struct {
	*scriptedProvider
	hang atomic.Bool
}

func (p *hangingProvider) GenerateStaging(ctx context.Context, image *models.ImageInput, prompt string, opts provider.Options) (*provider.Output, error) {
	if p.hang.Load() {
		<-ctx.Done()
		return nil, provider.Wrap(ctx.Err(), p.name, "")
	}
	return p.scriptedProvider.GenerateStaging(ctx, image, prompt, opts)
}

func TestCall_ClientDisconnectsDoNotOpenCircuit(t *testing.T) {
	gemini := &hangingProvider{scriptedProvider: newScripted("gemini")}
	gemini.hang.Store(true)
	r := newTestRouter(t, Config{Order: []string{"gemini"}}, gemini)

	for i := 0; i < 6; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		if _, err := r.Call(ctx, "gemini", Request{Prompt: "p"}, singleAttempt()); err == nil {
			t.Fatalf("call %d: expected error after disconnect", i+1)
		}
		cancel()
	}

	// The guarded call may still be unwinding after Call returns.
	time.Sleep(50 * time.Millisecond)
	if snap := r.breakers["gemini"].Snapshot(); snap.Failures != 0 || snap.State != resilience.StateClosed.String() {
		t.Fatalf("breaker = %+v, want closed with no failures", snap)
	}

	gemini.hang.Store(false)
	out, err := r.Call(context.Background(), "gemini", Request{Prompt: "p"}, singleAttempt())
	if err != nil {
		t.Fatalf("healthy call error = %v", err)
	}
	if out.Provider != "gemini" {
		t.Errorf("Provider = %q, want gemini", out.Provider)
	}
}

func TestCall_AttemptTimeoutsStillOpenCircuit(t *testing.T) {
	gemini := &hangingProvider{scriptedProvider: newScripted("gemini")}
	gemini.hang.Store(true)
	r := newTestRouter(t, Config{Order: []string{"gemini"}}, gemini)

	policy := singleAttempt()
	policy.AttemptTimeout = 5 * time.Millisecond
	for i := 0; i < 5; i++ {
		_, _ = r.Call(context.Background(), "gemini", Request{Prompt: "p"}, policy)
	}

	deadline := time.Now().Add(time.Second)
	for r.breakers["gemini"].State() != resilience.StateOpen {
		if time.Now().After(deadline) {
			t.Fatalf("breaker = %+v, want open after attempt timeouts", r.breakers["gemini"].Snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ========================================
// Status Tests
// ========================================

func TestStatuses(t *testing.T) {
	r := newTestRouter(t, Config{Order: []string{"fal", "gemini"}}, newScripted("gemini"), newScripted("fal"))

	statuses := r.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d entries, want 2", len(statuses))
	}
	if statuses[0].Info.Name != "fal" || statuses[0].Fallback != 0 {
		t.Errorf("first status = %+v", statuses[0])
	}
	if statuses[1].Breaker.State != "closed" {
		t.Errorf("breaker state = %s, want closed", statuses[1].Breaker.State)
	}
	if statuses[0].AvailableTokens != resilience.DefaultRateLimiterConfig().Capacity {
		t.Errorf("AvailableTokens = %d", statuses[0].AvailableTokens)
	}
}

func TestAdmit_UnknownProvider(t *testing.T) {
	r := newTestRouter(t, Config{}, newScripted("gemini"))
	if err := r.Admit(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
