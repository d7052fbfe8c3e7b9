// Package shutdown signals when the server has been idle long enough to stop,
// for platforms that scale machines to zero.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// BusyFunc reports whether background work is in progress. The model worker
// provides one so a machine is never stopped mid-analysis.
type BusyFunc func() bool

// IdleMonitor tracks request activity and closes its channel once neither
// requests nor background work have been seen for the timeout.
type IdleMonitor struct {
	timeout      time.Duration
	interval     time.Duration
	excludePaths []string
	busy         BusyFunc
	logger       *slog.Logger

	mu           sync.Mutex
	active       int
	lastActivity time.Time

	idle     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// IdleConfig configures an IdleMonitor.
type IdleConfig struct {
	// Timeout of zero disables the monitor.
	Timeout time.Duration
	// CheckInterval defaults to a sixth of Timeout, clamped to 5s..30s.
	CheckInterval time.Duration
	// ExcludePaths are path prefixes that do not count as activity.
	ExcludePaths []string
	Busy         BusyFunc
	Logger       *slog.Logger
}

// NewIdleMonitor creates an idle monitor.
func NewIdleMonitor(cfg IdleConfig) *IdleMonitor {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = min(max(cfg.Timeout/6, 5*time.Second), 30*time.Second)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleMonitor{
		timeout:      cfg.Timeout,
		interval:     interval,
		excludePaths: cfg.ExcludePaths,
		busy:         cfg.Busy,
		logger:       logger.With("component", "idle"),
		lastActivity: time.Now(),
		idle:         make(chan struct{}),
		stop:         make(chan struct{}),
	}
}

// Enabled reports whether the monitor will ever signal.
func (m *IdleMonitor) Enabled() bool {
	return m.timeout > 0
}

// Start begins monitoring. It is a no-op when disabled.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout.String(), "exclude_paths", m.excludePaths)
	go m.run()
}

// Stop stops monitoring without signalling.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Idle is closed when the idle timeout is reached.
func (m *IdleMonitor) Idle() <-chan struct{} {
	return m.idle
}

// Middleware counts requests as activity, except for excluded paths.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.excludePaths {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		m.touch(1)
		defer m.touch(-1)
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) touch(delta int) {
	m.mu.Lock()
	m.active += delta
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

// check returns how long the server has been idle. Background work counts as
// activity, so the full timeout restarts once it finishes.
func (m *IdleMonitor) check() time.Duration {
	busy := m.busy != nil && m.busy()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active > 0 || busy {
		m.lastActivity = time.Now()
		return 0
	}
	return time.Since(m.lastActivity)
}

func (m *IdleMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if idle := m.check(); idle >= m.timeout {
				m.logger.Info("idle timeout reached, signalling shutdown", "idle_time", idle.String())
				close(m.idle)
				return
			}
		}
	}
}
