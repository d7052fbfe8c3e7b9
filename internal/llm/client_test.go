package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ========================================
// LLMError Tests
// ========================================

func TestLLMError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *LLMError
		expected string
	}{
		{"with user message", &LLMError{UserMessage: "User-friendly message"}, "User-friendly message"},
		{"with wrapped error", &LLMError{Err: errors.New("wrapped error")}, "wrapped error"},
		{"empty error", &LLMError{}, "unknown LLM error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		want      error
		retryable bool
	}{
		{"rate limit", http.StatusTooManyRequests, "slow down", ErrRateLimited, true},
		{"unauthorized", http.StatusUnauthorized, "bad key", ErrInvalidAPIKey, false},
		{"unavailable", http.StatusServiceUnavailable, "down", ErrModelUnavailable, true},
		{"model not found", http.StatusBadRequest, "model not found", ErrModelUnavailable, false},
		{"timeout", 0, "context deadline exceeded", ErrProviderError, true},
		{"other", http.StatusInternalServerError, "boom", ErrProviderError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(errors.New(tt.msg), "m", tt.status)
			if !errors.Is(got, tt.want) {
				t.Errorf("ClassifyError() err = %v, want %v", got.Err, tt.want)
			}
			if IsRetryable(got) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(got), tt.retryable)
			}
		})
	}

	if ClassifyError(nil, "m", 500) != nil {
		t.Error("ClassifyError(nil) should be nil")
	}
}

// ========================================
// Client Tests
// ========================================

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(Config{}, nil)
	if c.Configured() {
		t.Fatal("Configured() = true without api key")
	}
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, CallOptions{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Chat() error = %v, want ErrNotConfigured", err)
	}
}

func TestClient_ChatJSON(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "meshquote-api/") {
			t.Errorf("User-Agent = %q, want meshquote-api/ prefix", ua)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"test-model","choices":[{"message":{"role":"assistant","content":"{\"a\":\"b\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "test-model"}, nil)
	var out map[string]string
	res, err := c.ChatJSON(context.Background(), []Message{{Role: "user", Content: "hi"}}, &out)
	if err != nil {
		t.Fatalf("ChatJSON() error = %v", err)
	}
	if out["a"] != "b" {
		t.Errorf("decoded = %v, want a=b", out)
	}
	if res.InputTokens != 10 || res.OutputTokens != 5 {
		t.Errorf("usage = %d/%d, want 10/5", res.InputTokens, res.OutputTokens)
	}
	if gotReq.ResponseFormat["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", gotReq.ResponseFormat)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "x"}}, CallOptions{})
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("Chat() error = %v, want *LLMError", err)
	}
	if llmErr.StatusCode != http.StatusTooManyRequests || !llmErr.Retryable {
		t.Errorf("LLMError = %+v", llmErr)
	}
}

func TestClient_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"not json"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	var out map[string]string
	if _, err := c.ChatJSON(context.Background(), nil, &out); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("ChatJSON() error = %v, want ErrInvalidResponse", err)
	}
}
