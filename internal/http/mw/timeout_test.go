package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// waitOrDone blocks for d or until the request context ends, then writes 200
// only if the context is still live.
func waitOrDone(d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(d):
			w.WriteHeader(http.StatusOK)
		case <-r.Context().Done():
		}
	})
}

// ========================================
// Timeout Middleware Tests
// ========================================

func TestTimeout_DefaultPath(t *testing.T) {
	cfg := TimeoutConfig{Default: 50 * time.Millisecond, Extended: time.Second}

	handler := Timeout(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestTimeout_Exceeded(t *testing.T) {
	cfg := TimeoutConfig{Default: 10 * time.Millisecond, Extended: time.Second}

	rec := httptest.NewRecorder()
	Timeout(cfg)(waitOrDone(time.Second)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

func TestTimeout_ExtendedPath(t *testing.T) {
	cfg := TimeoutConfig{
		Default:          10 * time.Millisecond,
		Extended:         time.Second,
		ExtendedPatterns: []string{"/ai-text"},
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/p1/ai-text", nil)
	Timeout(cfg)(waitOrDone(50*time.Millisecond)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestTimeout_LongPollGetsExtended(t *testing.T) {
	cfg := TimeoutConfig{Default: 10 * time.Millisecond, Extended: time.Second}

	tests := []struct {
		query string
		want  int
	}{
		{"?wait=5", http.StatusOK},
		{"?wait=0", http.StatusGatewayTimeout},
		{"", http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/models/m1"+tt.query, nil)
			Timeout(cfg)(waitOrDone(50*time.Millisecond)).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestTimeout_PanicIsReraised(t *testing.T) {
	cfg := TimeoutConfig{Default: time.Second, Extended: time.Second}
	handler := Timeout(cfg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	defer func() {
		if recover() == nil {
			t.Error("expected panic to propagate")
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
