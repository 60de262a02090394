// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import "time"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the conversation.
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // The message content
}

// ChatRequest is the request body for the /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
}

// GenerateRequest is the request body for the /api/generate endpoint.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	System  string   `json:"system,omitempty"`
	Options *Options `json:"options,omitempty"`
	Raw     bool     `json:"raw,omitempty"`
}

// Options contains model parameters for inference.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"` // 0.0-2.0, default 0.8
	TopK        int     `json:"top_k,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`     // Context window size
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens to generate

	// Stop sequences; generation ends when any is produced
	Stop []string `json:"stop,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is the response from the /api/chat endpoint.
type ChatResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Message            Message   `json:"message"`
	Done               bool      `json:"done"`
	DoneReason         string    `json:"done_reason,omitempty"`
	TotalDuration      int64     `json:"total_duration,omitempty"`       // nanoseconds
	LoadDuration       int64     `json:"load_duration,omitempty"`        // nanoseconds
	PromptEvalCount    int       `json:"prompt_eval_count,omitempty"`    // tokens in prompt
	PromptEvalDuration int64     `json:"prompt_eval_duration,omitempty"` // nanoseconds
	EvalCount          int       `json:"eval_count,omitempty"`           // tokens generated
	EvalDuration       int64     `json:"eval_duration,omitempty"`        // nanoseconds
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about a locally available model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModelsResponse is the response from the /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk represents a single chunk from a streaming response.
type StreamChunk struct {
	// Content from this chunk (chat: message.content, generate: response)
	Content string

	// Done is set on the final chunk
	Done       bool
	DoneReason string

	// Timing information (only populated on final chunk)
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration

	// Token counts (only populated on final chunk)
	PromptTokens     int
	CompletionTokens int

	// Model information
	Model string

	// Error if any occurred during streaming
	Error error
}

// APIError represents an error body from the Ollama API.
type APIError struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// TokensPerSecond calculates the generation speed from a response.
func (r *ChatResponse) TokensPerSecond() float64 {
	if r.EvalDuration == 0 {
		return 0
	}
	seconds := float64(r.EvalDuration) / 1e9
	return float64(r.EvalCount) / seconds
}
