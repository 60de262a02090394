// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is a single piece of assistant output from an SSE stream.
type StreamChunk struct {
	// Text is the delta of assistant text in this chunk. Empty for
	// lifecycle events (message_start, message_stop).
	Text string

	// Done is true on the final chunk of the stream.
	Done bool

	// StopReason is set on the final chunk when the API reported one.
	StopReason string

	// OutputTokens is set on the final chunk when usage was reported.
	OutputTokens int
}

// StreamCallback is called for each chunk received from a stream.
type StreamCallback func(chunk StreamChunk)

// sseEvent is the union of Messages API stream event payloads we care
// about. Event kinds we do not handle (ping, content_block_start) decode
// into zero values and are skipped.
type sseEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event, returning its event type and data.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("event:")) {
			eventType = string(bytes.TrimSpace(line[6:]))
		} else if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream performs a streaming messages request. The callback is
// called for each text delta and once more with Done set when the
// stream completes. Cancellation is via ctx; the underlying HTTP client
// carries no timeout of its own.
func (c *Client) ChatStream(ctx context.Context, model string, system string, messages []Message, callback StreamCallback) error {
	return c.stream(ctx, model, system, messages, nil, callback)
}

// GenerateStream is ChatStream with stop sequences, for single-shot
// generation tasks such as inline edits.
func (c *Client) GenerateStream(ctx context.Context, model string, system string, messages []Message, stop []string, callback StreamCallback) error {
	return c.stream(ctx, model, system, messages, stop, callback)
}

func (c *Client) stream(ctx context.Context, model string, system string, messages []Message, stop []string, callback StreamCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if model == "" {
		model = c.model
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	reqBody := messagesRequest{
		Model:     model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
		System:    system,
		Stream:    true,
		Stop:      stop,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return parseErrorResponse(resp.StatusCode, body)
	}

	return processStream(ctx, resp.Body, callback)
}

// processStream reads SSE events and dispatches chunks to the callback.
func processStream(ctx context.Context, body io.Reader, callback StreamCallback) error {
	reader := NewSSEReader(body)

	var stopReason string
	var outputTokens int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				// Server closed without message_stop; treat as done.
				callback(StreamChunk{Done: true, StopReason: stopReason, OutputTokens: outputTokens})
				return nil
			}
			return err
		}

		var ev sseEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Skip malformed events
			continue
		}

		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				callback(StreamChunk{Text: ev.Delta.Text})
			}
		case "message_delta":
			if ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
			if ev.Usage.OutputTokens > 0 {
				outputTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			callback(StreamChunk{Done: true, StopReason: stopReason, OutputTokens: outputTokens})
			return nil
		case "error":
			return &APIError{Status: http.StatusInternalServerError, Type: ev.Error.Type, Message: ev.Error.Message}
		}
	}
}
