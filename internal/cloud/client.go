// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides a client for the Anthropic Messages API.
// It is the fallback provider when a request routes to a cloud model,
// and it streams assistant output over SSE the same way the local
// provider streams NDJSON.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultBaseURL is the Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// APIVersion is sent on every request via the anthropic-version header.
	APIVersion = "2023-06-01"

	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultMaxTokens bounds the assistant response when the caller
	// does not specify a limit. The Messages API requires max_tokens.
	DefaultMaxTokens = 4096

	// DefaultTimeout applies to non-streaming requests only. Streaming
	// requests are bounded by their context.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize limits non-streaming response bodies (10MB).
	MaxResponseSize = 10 * 1024 * 1024
)

// =============================================================================
// ERRORS
// =============================================================================

// Sentinel errors for common failure modes. Use errors.Is to test.
var (
	// ErrNotConfigured is returned before any network activity when no
	// API key is set.
	ErrNotConfigured = errors.New("cloud provider not configured: no API key set")

	// ErrAuthFailed indicates the API key was rejected (401).
	ErrAuthFailed = errors.New("authentication failed: invalid API key")

	// ErrRateLimited indicates the provider throttled the request (429).
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrOverloaded indicates the provider is temporarily overloaded (529).
	ErrOverloaded = errors.New("provider overloaded")
)

// APIError carries the structured error body the Messages API returns.
type APIError struct {
	Status  int
	Type    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("anthropic api error (%d %s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("anthropic api error (%d): %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto the sentinel errors so callers
// can use errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthFailed
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrModelNotFound
	case 529:
		return ErrOverloaded
	}
	return nil
}

// IsAuthError reports whether err is an authentication failure.
func IsAuthError(err error) bool { return errors.Is(err, ErrAuthFailed) }

// IsRateLimited reports whether err is a provider rate limit.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsNotConfigured reports whether err means no API key was set.
func IsNotConfigured(err error) bool { return errors.Is(err, ErrNotConfigured) }

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is a single turn in a Messages API conversation.
// Role is "user" or "assistant"; system prompts travel in the request's
// top-level System field, not as messages.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// messagesRequest is the POST /v1/messages body.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
	System    string    `json:"system,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
	Stop      []string  `json:"stop_sequences,omitempty"`
}

// messagesResponse is the non-streaming response body.
type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// errorResponse is the error body shape the API returns.
type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// HTTP CLIENTS
// =============================================================================

// Shared transports with connection pooling. The streaming client has no
// overall timeout; streaming requests are bounded by their context.
var (
	sharedClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		},
	}
)

// =============================================================================
// CLIENT
// =============================================================================

// ClientConfig holds configuration for the Anthropic client.
type ClientConfig struct {
	// APIKey authenticates requests. Empty means not configured.
	APIKey string

	// BaseURL overrides the API endpoint (tests). Defaults to DefaultBaseURL.
	BaseURL string

	// Model is the default model for requests that do not name one.
	Model string

	// MaxTokens bounds assistant output. Defaults to DefaultMaxTokens.
	MaxTokens int

	// RequestsPerMinute enables client-side throttling when > 0.
	RequestsPerMinute int
}

// DefaultConfig returns a configuration with sensible defaults and no key.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   DefaultBaseURL,
		Model:     DefaultModel,
		MaxTokens: DefaultMaxTokens,
	}
}

// Client talks to the Anthropic Messages API.
type Client struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	limiter   *rate.Limiter
}

// NewClient creates a client from config, filling in zero values.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	c := &Client{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return c
}

// IsConfigured reports whether an API key is present. Callers must not
// attempt requests when this is false; every entry point also enforces it.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// DefaultModel returns the model used when a request does not name one.
func (c *Client) DefaultModel() string {
	return c.model
}

// setHeaders applies authentication and protocol headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", APIVersion)
}

// wait blocks until the client-side rate limiter admits a request.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// =============================================================================
// REQUESTS
// =============================================================================

// Chat performs a non-streaming messages request and returns the full
// assistant text.
func (c *Client) Chat(ctx context.Context, model string, system string, messages []Message) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	if model == "" {
		model = c.model
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	reqBody := messagesRequest{
		Model:     model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
		System:    system,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := sharedClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseErrorResponse(resp.StatusCode, body)
	}

	var mr messagesResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var sb strings.Builder
	for _, block := range mr.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// parseErrorResponse maps an HTTP error status and body onto an APIError.
func parseErrorResponse(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		apiErr.Type = er.Error.Type
		apiErr.Message = er.Error.Message
	} else {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
