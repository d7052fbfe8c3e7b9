package shutdown

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdleMonitor_Disabled(t *testing.T) {
	m := NewIdleMonitor(IdleConfig{Logger: testLogger()})
	if m.Enabled() {
		t.Error("Enabled() = true with zero timeout")
	}
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	if got := m.Middleware(h); got == nil {
		t.Error("Middleware() returned nil")
	}
	m.Start()
	m.Stop()
}

func TestIdleMonitor_SignalsWhenIdle(t *testing.T) {
	m := NewIdleMonitor(IdleConfig{Timeout: 30 * time.Millisecond, CheckInterval: 5 * time.Millisecond, Logger: testLogger()})
	m.Start()
	defer m.Stop()

	select {
	case <-m.Idle():
	case <-time.After(time.Second):
		t.Fatal("idle signal not received")
	}
}

func TestIdleMonitor_BusyPreventsShutdown(t *testing.T) {
	var busy atomic.Bool
	busy.Store(true)
	m := NewIdleMonitor(IdleConfig{
		Timeout:       30 * time.Millisecond,
		CheckInterval: 5 * time.Millisecond,
		Busy:          busy.Load,
		Logger:        testLogger(),
	})
	m.Start()
	defer m.Stop()

	select {
	case <-m.Idle():
		t.Fatal("idle signalled while background work was running")
	case <-time.After(100 * time.Millisecond):
	}

	busy.Store(false)
	select {
	case <-m.Idle():
	case <-time.After(time.Second):
		t.Fatal("idle signal not received after work finished")
	}
}

func TestIdleMonitor_Middleware(t *testing.T) {
	m := NewIdleMonitor(IdleConfig{Timeout: time.Hour, ExcludePaths: []string{"/healthz"}, Logger: testLogger()})
	m.lastActivity = time.Now().Add(-time.Minute)

	var during int
	h := m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		m.mu.Lock()
		during = m.active
		m.mu.Unlock()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if during != 0 {
		t.Errorf("excluded path counted as active (%d)", during)
	}
	if m.check() < 50*time.Second {
		t.Error("excluded path reset the idle timer")
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil))
	if during != 1 {
		t.Errorf("active during request = %d, want 1", during)
	}
	if m.check() > time.Second {
		t.Error("request did not reset the idle timer")
	}
}
