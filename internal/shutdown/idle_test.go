package shutdown

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(timeout time.Duration, busy func() bool) (*IdleMonitor, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewIdleMonitor(Config{
		Timeout:         timeout,
		ExcludePrefixes: []string{"/healthz", "/readyz"},
		Busy:            busy,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	m.now = clock.Now
	m.touch()
	return m, clock
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// ========================================
// Idle Detection Tests
// ========================================

func TestIdleMonitor_Check(t *testing.T) {
	t.Run("fires after timeout", func(t *testing.T) {
		m, clock := newTestMonitor(time.Minute, nil)
		clock.Advance(30 * time.Second)
		if m.check() {
			t.Fatal("check() = true before timeout")
		}
		clock.Advance(31 * time.Second)
		if !m.check() {
			t.Fatal("check() = false after timeout")
		}
		if !closed(m.Idle()) {
			t.Error("Idle() not closed")
		}
		// A second check must not panic on the closed channel.
		m.check()
	})

	t.Run("background work resets the clock", func(t *testing.T) {
		busy := true
		m, clock := newTestMonitor(time.Minute, func() bool { return busy })
		clock.Advance(2 * time.Minute)
		if m.check() {
			t.Fatal("check() = true while busy")
		}
		busy = false
		clock.Advance(30 * time.Second)
		if m.check() {
			t.Fatal("check() = true within grace period after work ended")
		}
		clock.Advance(31 * time.Second)
		if !m.check() {
			t.Fatal("check() = false after grace period")
		}
	})

	t.Run("in-flight request keeps server alive", func(t *testing.T) {
		m, clock := newTestMonitor(time.Minute, nil)
		m.inFlight.Add(1)
		clock.Advance(5 * time.Minute)
		if m.check() {
			t.Fatal("check() = true with request in flight")
		}
	})
}

// ========================================
// Middleware Tests
// ========================================

func TestIdleMonitor_Middleware(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantSeen bool
	}{
		{"generation counts", "/api/v1/generations", true},
		{"health probe excluded", "/healthz", false},
		{"readiness probe excluded", "/readyz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock := newTestMonitor(time.Minute, nil)
			start := m.lastSeen.Load()
			clock.Advance(10 * time.Second)

			var during int64
			h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				during = m.inFlight.Load()
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			seen := m.lastSeen.Load() != start
			if seen != tt.wantSeen {
				t.Errorf("activity recorded = %v, want %v", seen, tt.wantSeen)
			}
			if tt.wantSeen && during != 1 {
				t.Errorf("in-flight during request = %d, want 1", during)
			}
			if m.inFlight.Load() != 0 {
				t.Errorf("in-flight after request = %d, want 0", m.inFlight.Load())
			}
		})
	}
}

func TestIdleMonitor_Disabled(t *testing.T) {
	m := NewIdleMonitor(Config{})
	if m.Enabled() {
		t.Error("Enabled() = true with zero timeout")
	}
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
