// Package llm provides a minimal client for OpenAI-compatible chat
// completion APIs and the error classification used by its callers.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error categories for LLM operations.
var (
	// ErrNotConfigured indicates no API key is configured.
	ErrNotConfigured = errors.New("llm not configured")

	// ErrRateLimited indicates the provider rejected the call for rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidAPIKey indicates the API key is invalid or expired.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrModelUnavailable indicates the model is unknown or overloaded.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrProviderError indicates a general provider error.
	ErrProviderError = errors.New("provider error")

	// ErrInvalidResponse indicates the provider answered with content we cannot use.
	ErrInvalidResponse = errors.New("invalid response")
)

// LLMError represents an error from an LLM provider with user-friendly messaging.
type LLMError struct {
	// Original error from the provider
	Err error

	// HTTP status code (if applicable)
	StatusCode int

	// Model that was being used
	Model string

	// User-friendly message to display
	UserMessage string

	// Raw error message from the provider
	RawMessage string

	// Whether retrying the same call may succeed
	Retryable bool
}

func (e *LLMError) Error() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown LLM error"
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// ClassifyError maps a failed call to an LLMError.
func ClassifyError(err error, model string, statusCode int) *LLMError {
	if err == nil {
		return nil
	}

	errStr := strings.ToLower(err.Error())
	llmErr := &LLMError{
		Err:        err,
		StatusCode: statusCode,
		Model:      model,
		RawMessage: err.Error(),
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		llmErr.Err = ErrRateLimited
		llmErr.UserMessage = "Rate limit exceeded. Please wait before retrying."
		llmErr.Retryable = true

	case http.StatusUnauthorized, http.StatusForbidden:
		llmErr.Err = ErrInvalidAPIKey
		llmErr.UserMessage = "Invalid API key. Please check the text generation configuration."

	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		llmErr.Err = ErrModelUnavailable
		llmErr.UserMessage = "The model is temporarily unavailable. Please try again later."
		llmErr.Retryable = true

	default:
		switch {
		case strings.Contains(errStr, "model not found") || strings.Contains(errStr, "invalid model"):
			llmErr.Err = ErrModelUnavailable
			llmErr.UserMessage = "The configured model is not available."
		case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
			llmErr.Err = ErrProviderError
			llmErr.UserMessage = "Request timed out. The model took too long to respond."
			llmErr.Retryable = true
		default:
			llmErr.Err = ErrProviderError
			llmErr.UserMessage = fmt.Sprintf("LLM error: %s", err.Error())
		}
	}

	return llmErr
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
