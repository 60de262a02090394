// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
// Ollama streams NDJSON: one JSON object per line, with content either in
// message.content (/api/chat) or response (/api/generate) and a done flag
// on the final line.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	model       string
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{
		reader: bufio.NewReader(r),
	}
}

// Process reads the stream and calls the callback for each chunk.
// Blocks until the stream is complete or the context is cancelled;
// cancellation is observed at chunk boundaries.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			chunk, err := s.readChunk()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}

			if chunk != nil {
				callback(*chunk)
				if chunk.Done {
					return nil
				}
			}
		}
	}
}

// readChunk reads and parses a single line from the stream.
func (s *StreamReader) readChunk() (*StreamChunk, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		// Try to process the last line even on EOF
		if len(line) == 0 {
			return nil, err
		}
	}

	if len(line) == 0 {
		return nil, nil
	}

	var response struct {
		Model     string    `json:"model"`
		CreatedAt time.Time `json:"created_at"`
		Message   struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Response           string `json:"response"`
		Done               bool   `json:"done"`
		DoneReason         string `json:"done_reason,omitempty"`
		TotalDuration      int64  `json:"total_duration,omitempty"`
		LoadDuration       int64  `json:"load_duration,omitempty"`
		PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`
		PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"`
		EvalCount          int    `json:"eval_count,omitempty"`
		EvalDuration       int64  `json:"eval_duration,omitempty"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		// Skip malformed lines
		return nil, nil
	}

	if response.Model != "" {
		s.model = response.Model
	}

	// Chat responses carry content in message.content, generate responses
	// in response.
	content := response.Message.Content
	if content == "" {
		content = response.Response
	}
	if content != "" {
		s.accumulator.WriteString(content)
	}

	chunk := &StreamChunk{
		Content:    content,
		Done:       response.Done,
		Model:      s.model,
		DoneReason: response.DoneReason,
	}

	if response.Done {
		chunk.TotalDuration = time.Duration(response.TotalDuration)
		chunk.LoadDuration = time.Duration(response.LoadDuration)
		chunk.PromptEvalDuration = time.Duration(response.PromptEvalDuration)
		chunk.EvalDuration = time.Duration(response.EvalDuration)
		chunk.PromptTokens = response.PromptEvalCount
		chunk.CompletionTokens = response.EvalCount
	}

	return chunk, nil
}

// GetAccumulated returns all accumulated content.
func (s *StreamReader) GetAccumulated() string {
	return s.accumulator.String()
}

// GetModel returns the model name from the stream.
func (s *StreamReader) GetModel() string {
	return s.model
}

// =============================================================================
// STREAM ACCUMULATOR
// =============================================================================

// StreamAccumulator collects streaming chunks into a full response.
type StreamAccumulator struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	content strings.Builder
	Done    bool
	Error   error

	promptTokens     int
	completionTokens int
	evalDuration     time.Duration
}

// NewStreamAccumulator creates a new accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{}
}

// Add processes a new chunk.
func (a *StreamAccumulator) Add(chunk StreamChunk) {
	if chunk.Error != nil {
		a.Error = chunk.Error
		a.Done = true
		return
	}

	a.content.WriteString(chunk.Content)

	if chunk.Done {
		a.Done = true
		a.promptTokens = chunk.PromptTokens
		a.completionTokens = chunk.CompletionTokens
		a.evalDuration = chunk.EvalDuration
	}
}

// GetContent returns the accumulated content.
func (a *StreamAccumulator) GetContent() string {
	return a.content.String()
}

// IsDone returns whether streaming is complete.
func (a *StreamAccumulator) IsDone() bool {
	return a.Done
}

// GetError returns any error that occurred.
func (a *StreamAccumulator) GetError() error {
	return a.Error
}

// TokensPerSecond returns the generation speed reported by the final chunk.
func (a *StreamAccumulator) TokensPerSecond() float64 {
	if a.evalDuration == 0 {
		return 0
	}
	return float64(a.completionTokens) / a.evalDuration.Seconds()
}
