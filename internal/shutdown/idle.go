// Package shutdown signals when the server has gone idle so scale-to-zero
// platforms can stop the machine between staging sessions.
package shutdown

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds idle monitor settings. A zero Timeout disables the monitor.
type Config struct {
	Timeout time.Duration
	// ExcludePrefixes are request paths that do not count as activity,
	// such as health probes.
	ExcludePrefixes []string
	// Busy reports background work (batch jobs) that keeps the server alive.
	Busy   func() bool
	Logger *slog.Logger
}

// IdleMonitor tracks in-flight requests and background work.
type IdleMonitor struct {
	cfg      Config
	inFlight atomic.Int64
	lastSeen atomic.Int64 // unix nanos
	idle     chan struct{}
	once     sync.Once
	now      func() time.Time
	logger   *slog.Logger
}

// NewIdleMonitor creates an idle monitor.
func NewIdleMonitor(cfg Config) *IdleMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &IdleMonitor{
		cfg:    cfg,
		idle:   make(chan struct{}),
		now:    time.Now,
		logger: logger.With("component", "idle"),
	}
	m.touch()
	return m
}

// Enabled reports whether the monitor will ever fire.
func (m *IdleMonitor) Enabled() bool {
	return m.cfg.Timeout > 0
}

// Idle is closed once the idle timeout is reached.
func (m *IdleMonitor) Idle() <-chan struct{} {
	return m.idle
}

// Start checks for idleness until ctx is done or the timeout fires.
func (m *IdleMonitor) Start(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	interval := min(max(m.cfg.Timeout/6, 5*time.Second), 30*time.Second)
	m.logger.Info("idle monitoring started", "timeout", m.cfg.Timeout, "check_interval", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.check() {
					return
				}
			}
		}
	}()
}

// Middleware counts requests as activity.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.inFlight.Add(1)
		m.touch()
		defer func() {
			m.inFlight.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

// check closes the idle channel when nothing has happened for Timeout.
// Background work resets the clock, giving a full grace period after it ends.
func (m *IdleMonitor) check() bool {
	if m.inFlight.Load() > 0 || (m.cfg.Busy != nil && m.cfg.Busy()) {
		m.touch()
		return false
	}
	idleFor := m.now().Sub(time.Unix(0, m.lastSeen.Load()))
	if idleFor < m.cfg.Timeout {
		m.logger.Debug("idle check", "idle_for", idleFor)
		return false
	}
	m.once.Do(func() {
		m.logger.Info("idle timeout reached", "idle_for", idleFor, "timeout", m.cfg.Timeout)
		close(m.idle)
	})
	return true
}

func (m *IdleMonitor) touch() {
	m.lastSeen.Store(m.now().UnixNano())
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, p := range m.cfg.ExcludePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
