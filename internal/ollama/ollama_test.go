// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// Test Helpers
// ============================================================================

func newTestClient(url string) *Client {
	return NewClientWithConfig(&ClientConfig{
		BaseURL:      url,
		Timeout:      5 * time.Second,
		DefaultModel: "test-model",
	})
}

// ndjsonHandler streams the given lines as an NDJSON response.
func ndjsonHandler(lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}
}

// ============================================================================
// StreamReader Tests
// ============================================================================

func TestStreamReaderChatContent(t *testing.T) {
	input := `{"model":"test-model","message":{"role":"assistant","content":"Hello"},"done":false}
{"model":"test-model","message":{"role":"assistant","content":" world"},"done":false}
{"model":"test-model","message":{"role":"assistant","content":""},"done":true,"eval_count":2,"eval_duration":1000000000}
`
	reader := NewStreamReader(strings.NewReader(input))

	var chunks []StreamChunk
	err := reader.Process(context.Background(), func(chunk StreamChunk) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if reader.GetAccumulated() != "Hello world" {
		t.Errorf("accumulated = %q, want %q", reader.GetAccumulated(), "Hello world")
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if !chunks[2].Done {
		t.Error("final chunk not marked done")
	}
	if chunks[2].CompletionTokens != 2 {
		t.Errorf("CompletionTokens = %d, want 2", chunks[2].CompletionTokens)
	}
}

func TestStreamReaderGenerateContent(t *testing.T) {
	input := `{"model":"fim-model","response":"def add","done":false}
{"model":"fim-model","response":"(a, b):","done":false}
{"model":"fim-model","response":"","done":true}
`
	reader := NewStreamReader(strings.NewReader(input))

	err := reader.Process(context.Background(), func(chunk StreamChunk) {})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if reader.GetAccumulated() != "def add(a, b):" {
		t.Errorf("accumulated = %q, want %q", reader.GetAccumulated(), "def add(a, b):")
	}
	if reader.GetModel() != "fim-model" {
		t.Errorf("model = %q, want %q", reader.GetModel(), "fim-model")
	}
}

func TestStreamReaderSkipsMalformedLines(t *testing.T) {
	input := `{"message":{"content":"ok"},"done":false}
this is not json
{"message":{"content":"!"},"done":true}
`
	reader := NewStreamReader(strings.NewReader(input))

	err := reader.Process(context.Background(), func(chunk StreamChunk) {})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reader.GetAccumulated() != "ok!" {
		t.Errorf("accumulated = %q, want %q", reader.GetAccumulated(), "ok!")
	}
}

func TestStreamReaderCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := NewStreamReader(strings.NewReader(`{"message":{"content":"x"},"done":false}`))
	err := reader.Process(ctx, func(chunk StreamChunk) {
		t.Error("callback fired after cancellation")
	})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ============================================================================
// ChatStream Tests
// ============================================================================

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if !req.Stream {
			t.Error("stream flag not set")
		}
		ndjsonHandler([]string{
			`{"message":{"content":"Hi"},"done":false}`,
			`{"message":{"content":" there"},"done":true}`,
		})(w, r)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	acc := NewStreamAccumulator()
	err := client.ChatStream(context.Background(), "test-model",
		[]Message{NewUserMessage("hello")}, acc.Add)
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if acc.GetContent() != "Hi there" {
		t.Errorf("content = %q, want %q", acc.GetContent(), "Hi there")
	}
	if !acc.IsDone() {
		t.Error("accumulator not done")
	}
}

func TestGenerateStreamSendsPromptAndStops(t *testing.T) {
	var got GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		ndjsonHandler([]string{
			`{"response":"x + y","done":true}`,
		})(w, r)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	opts := &Options{Stop: []string{"\n\n"}, NumPredict: 128}
	var content strings.Builder
	err := client.GenerateStream(context.Background(), "fim-model", "<PRE>...", opts, func(c StreamChunk) {
		content.WriteString(c.Content)
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	if got.Prompt != "<PRE>..." {
		t.Errorf("prompt = %q", got.Prompt)
	}
	if got.Options == nil || len(got.Options.Stop) != 1 || got.Options.Stop[0] != "\n\n" {
		t.Errorf("stop options not forwarded: %+v", got.Options)
	}
	if content.String() != "x + y" {
		t.Errorf("content = %q, want %q", content.String(), "x + y")
	}
}

func TestChatStreamModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "missing", nil, func(StreamChunk) {})
	if !IsModelNotFound(err) {
		t.Errorf("IsModelNotFound(%v) = false", err)
	}
}

func TestChatStreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"model requires more system memory"}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "big", nil, func(StreamChunk) {})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "more system memory") {
		t.Errorf("error did not carry API message: %v", err)
	}
}

func TestChatStreamConnectionRefused(t *testing.T) {
	// A server that is immediately closed leaves a refusing address.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newTestClient(url)
	err := client.ChatStream(context.Background(), "m", nil, func(StreamChunk) {})
	if !IsNotRunning(err) {
		t.Errorf("IsNotRunning(%v) = false", err)
	}
}

// ============================================================================
// Model Listing Tests
// ============================================================================

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[{"name":"deepseek-coder:1.3b","size":776080839},{"name":"qwen2.5-coder:7b","size":4683087519}]}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0].Name != "deepseek-coder:1.3b" {
		t.Errorf("models[0].Name = %q", models[0].Name)
	}
}

func TestModelExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"deepseek-coder:1.3b"}]}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if !client.ModelExists(context.Background(), "deepseek-coder:1.3b") {
		t.Error("ModelExists = false for present model")
	}
	if client.ModelExists(context.Background(), "missing:1b") {
		t.Error("ModelExists = true for absent model")
	}
}

// ============================================================================
// Error Predicate Tests
// ============================================================================

func TestErrorPredicates(t *testing.T) {
	if !IsNotRunning(ErrNotRunning) {
		t.Error("IsNotRunning(ErrNotRunning) = false")
	}
	if !IsTimeout(ErrTimeout) {
		t.Error("IsTimeout(ErrTimeout) = false")
	}
	if !IsModelNotFound(ErrModelNotFound) {
		t.Error("IsModelNotFound(ErrModelNotFound) = false")
	}

	wrapped := &ClientError{Type: ErrTypeTimeout, Message: "deadline", Cause: context.DeadlineExceeded}
	if !IsTimeout(wrapped) {
		t.Error("IsTimeout(wrapped) = false")
	}
	if IsNotRunning(wrapped) {
		t.Error("IsNotRunning(wrapped) = true")
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := &ClientError{Type: ErrTypeConnection, Message: "request failed", Cause: cause}

	if err.Unwrap() != cause {
		t.Error("Unwrap did not return cause")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() = %q, missing cause", err.Error())
	}
}

// ============================================================================
// Config Tests
// ============================================================================

func TestNewClientWithConfigFillsDefaults(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{})

	cfg := client.GetConfig()
	if cfg.BaseURL == "" || cfg.Timeout == 0 || cfg.DefaultModel == "" {
		t.Errorf("defaults not filled: %+v", cfg)
	}
}

func TestNewClientWithNilConfig(t *testing.T) {
	client := NewClientWithConfig(nil)
	if client.GetConfig().BaseURL != "http://127.0.0.1:11434" {
		t.Errorf("BaseURL = %q", client.GetConfig().BaseURL)
	}
}
