// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with a local
// Ollama server. It exposes streaming chat and raw-prompt generation, used
// for conversation and fill-in-middle completion respectively.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return errors.Is(err, ErrNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return errors.Is(err, ErrTimeout)
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeModelNotFound
	}
	return errors.Is(err, ErrModelNotFound)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6
	// resolution issues on Windows
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// DefaultModel to use if none specified (default: "qwen2.5-coder:7b")
	DefaultModel string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:      "http://127.0.0.1:11434",
		Timeout:      30 * time.Second,
		DefaultModel: "qwen2.5-coder:7b",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is thread-safe for concurrent use. Availability is not checked
// up front; an unreachable server surfaces as ErrNotRunning on first use.
//
// Example:
//
//	client := ollama.NewClient()
//	err := client.ChatStream(ctx, "qwen2.5-coder:7b", messages, cb)
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
// Zero values are filled from defaults.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "qwen2.5-coder:7b"
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally available models from Ollama.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: "failed to list models: " + resp.Status,
		}
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return result.Models, nil
}

// ModelExists checks if a model is available locally.
func (c *Client) ModelExists(ctx context.Context, model string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m.Name == model {
			return true
		}
	}
	return false
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends a chat request and returns the complete response (non-streaming).
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	if model == "" {
		model = c.config.DefaultModel
	}

	reqBody := ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrModelNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, "chat request failed")
	}

	var result ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return &result, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// StreamCallback is called for each chunk received during streaming.
type StreamCallback func(chunk StreamChunk)

// ChatStream sends a streaming chat request and calls the callback for each
// chunk. The callback is called synchronously in the order chunks are
// received. Returns when streaming is complete or an error occurs;
// cancellation of ctx stops the stream between chunks.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) error {
	if model == "" {
		model = c.config.DefaultModel
	}

	reqBody := ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	return c.stream(ctx, "/api/chat", body, callback)
}

// GenerateStream sends a streaming raw-prompt request to /api/generate and
// calls the callback for each chunk. Used for fill-in-middle completion,
// where the prompt carries FIM markers and opts sets stop sequences and the
// prediction cap.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, opts *Options, callback StreamCallback) error {
	if model == "" {
		model = c.config.DefaultModel
	}

	reqBody := GenerateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  true,
		Options: opts,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	return c.stream(ctx, "/api/generate", body, callback)
}

// stream posts body to path and feeds the NDJSON response through a
// StreamReader.
func (c *Client) stream(ctx context.Context, path string, body []byte, callback StreamCallback) error {
	// Use a client without timeout for streaming; deadlines come from ctx.
	// Ollama is a localhost HTTP endpoint, so no TLS configuration applies.
	streamClient := &http.Client{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return ErrNotRunning
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrModelNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return apiError(resp, "stream request failed")
	}

	reader := NewStreamReader(resp.Body)
	return reader.Process(ctx, callback)
}

// apiError extracts an API error body if present, falling back to status.
func apiError(resp *http.Response, context string) error {
	var apiErr APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return &ClientError{
			Type:    ErrTypeInvalidResponse,
			Message: apiErr.Error,
		}
	}
	return &ClientError{
		Type:    ErrTypeInvalidResponse,
		Message: context + ": " + resp.Status,
	}
}

// =============================================================================
// UTILITY METHODS
// =============================================================================

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// GetDefaultModel returns the current default model.
func (c *Client) GetDefaultModel() string {
	return c.config.DefaultModel
}
