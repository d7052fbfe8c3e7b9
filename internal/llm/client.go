package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/version"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// Temperature is used when a call does not set its own.
	Temperature float64
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallOptions configures a single completion call.
type CallOptions struct {
	Temperature float64 // Default: Config.Temperature, then 0.7
	MaxTokens   int     // Default: 1024
	JSONMode    bool    // Request a JSON object response
}

// CallResult holds the completion text and token usage.
type CallResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string
	Model        string
}

// IsTruncated returns true if the response hit max_tokens.
func (r *CallResult) IsTruncated() bool {
	return r.FinishReason == "length"
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a client. Missing base URL, model and timeout fall back
// to defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "llm"),
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends the messages and returns the first choice.
func (c *Client) Chat(ctx context.Context, messages []Message, opts CallOptions) (*CallResult, error) {
	if !c.Configured() {
		return nil, &LLMError{Err: ErrNotConfigured, UserMessage: "text generation is not configured"}
	}

	if opts.Temperature == 0 {
		opts.Temperature = c.cfg.Temperature
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}

	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode {
		reqBody.ResponseFormat = map[string]string{"type": "json_object"}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := c.cfg.BaseURL + "/chat/completions"
	c.logger.Debug("making LLM API request",
		"model", c.cfg.Model,
		"api_url", apiURL,
		"messages", len(messages),
		"json_mode", opts.JSONMode,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", version.Get().UserAgent("api"))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("LLM API request failed", "error", err)
		return nil, ClassifyError(fmt.Errorf("request failed: %w", err), c.cfg.Model, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("LLM API error", "status_code", resp.StatusCode, "response", string(body))
		return nil, ClassifyError(fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)), c.cfg.Model, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &LLMError{Err: ErrInvalidResponse, Model: c.cfg.Model, RawMessage: err.Error(), UserMessage: "failed to decode LLM response"}
	}
	if parsed.Error != nil {
		return nil, ClassifyError(errors.New(parsed.Error.Message), c.cfg.Model, resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, &LLMError{Err: ErrInvalidResponse, Model: c.cfg.Model, UserMessage: "LLM response has no choices"}
	}

	result := &CallResult{
		Content:      parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
		Model:        parsed.Model,
	}
	if result.Model == "" {
		result.Model = c.cfg.Model
	}
	if result.IsTruncated() {
		c.logger.Warn("LLM output truncated", "model", result.Model, "output_tokens", result.OutputTokens, "max_tokens", opts.MaxTokens)
	}
	return result, nil
}

// ChatJSON runs Chat in JSON mode and decodes the reply into out.
func (c *Client) ChatJSON(ctx context.Context, messages []Message, out any) (*CallResult, error) {
	result, err := c.Chat(ctx, messages, CallOptions{JSONMode: true})
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(result.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), out); err != nil {
		return result, &LLMError{Err: ErrInvalidResponse, Model: result.Model, RawMessage: result.Content, UserMessage: "LLM returned malformed JSON"}
	}
	return result, nil
}
