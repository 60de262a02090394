// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ai

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/morganforge/inkwell/internal/cloud"
	"github.com/morganforge/inkwell/internal/ollama"
	"github.com/morganforge/inkwell/internal/router"
)

// =============================================================================
// SYSTEM PROMPTS
// =============================================================================

const codingSystemPrompt = `You are a concise coding assistant embedded in a text editor.
Answer programming questions directly. Prefer short, correct code over prose.
When the user provides document context, treat it as the file they are editing.`

const writingSystemPrompt = `You are a concise writing assistant embedded in a text editor.
Help with drafting, rewording, and structure. Keep answers short.
When the user provides document context, treat it as the document they are editing.`

// SystemPrompt returns the chat system prompt for a layout mode.
func SystemPrompt(mode string) string {
	if mode == "writing" {
		return writingSystemPrompt
	}
	return codingSystemPrompt
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Turn is one message in the active conversation.
type Turn struct {
	ID      uuid.UUID
	Role    string // "user" or "assistant"
	Content string
	Time    time.Time
}

// Conversation is the in-memory transcript of the active session. It is
// never persisted; closing the program discards it.
type Conversation struct {
	ID    uuid.UUID
	Turns []Turn
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{ID: uuid.New()}
}

// Append adds a turn and returns its id.
func (c *Conversation) Append(role, content string) uuid.UUID {
	id := uuid.New()
	c.Turns = append(c.Turns, Turn{ID: id, Role: role, Content: content, Time: time.Now()})
	return id
}

// AppendToLast extends the last turn's content. Used while streaming an
// assistant reply. No-op on an empty transcript.
func (c *Conversation) AppendToLast(delta string) {
	if len(c.Turns) == 0 {
		return
	}
	c.Turns[len(c.Turns)-1].Content += delta
}

// FrameUserMessage wraps a user request with optional document context
// so the model sees the file being edited.
func FrameUserMessage(request, docContext string) string {
	if strings.TrimSpace(docContext) == "" {
		return request
	}
	return fmt.Sprintf("Context:\n```\n%s\n```\n\nUser request: %s", docContext, request)
}

// =============================================================================
// CHAT CONTROLLER
// =============================================================================

// LocalChatStreamer is the slice of the Ollama client chat needs.
type LocalChatStreamer interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error
}

// CloudChatStreamer is the slice of the Anthropic client chat needs.
type CloudChatStreamer interface {
	ChatStream(ctx context.Context, model string, system string, messages []cloud.Message, callback cloud.StreamCallback) error
}

// ChatController is the chat channel's client: it owns the transcript,
// frames prompts, resolves a route, and submits to the coordinator.
type ChatController struct {
	coord  *Coordinator
	routes *router.Router
	local  LocalChatStreamer
	cloud  CloudChatStreamer
	mode   string

	conversation *Conversation

	// lastStats holds the timing block of the most recent finished local
	// turn. Written by the worker, read by the UI; hence atomic.
	lastStats atomic.Pointer[ollama.ChatResponse]
}

// NewChatController wires the chat channel.
func NewChatController(coord *Coordinator, routes *router.Router, local LocalChatStreamer, cloudClient CloudChatStreamer, mode string) *ChatController {
	return &ChatController{
		coord:        coord,
		routes:       routes,
		local:        local,
		cloud:        cloudClient,
		mode:         mode,
		conversation: NewConversation(),
	}
}

// Conversation returns the active transcript.
func (cc *ChatController) Conversation() *Conversation {
	return cc.conversation
}

// Reset discards the transcript and starts a fresh conversation.
func (cc *ChatController) Reset() {
	cc.coord.Cancel(ChannelChat)
	cc.conversation = NewConversation()
}

// Send submits a chat turn. The user message (framed with docContext
// when non-empty) is appended to the transcript along with an empty
// assistant turn that the update loop fills from fragment events.
// Returns the session id.
func (cc *ChatController) Send(request, docContext, modelOverride string) uint64 {
	framed := FrameUserMessage(request, docContext)
	cc.conversation.Append("user", framed)

	decision := cc.routes.Resolve(router.CategoryChat, modelOverride)
	system := SystemPrompt(cc.mode)
	history := cc.history()

	cc.conversation.Append("assistant", "")

	return cc.coord.Submit(ChannelChat, func(ctx context.Context, emit func(string)) error {
		if decision.Provider == router.ProviderCloud {
			return cc.cloud.ChatStream(ctx, decision.Model, system, toCloudMessages(history), func(chunk cloud.StreamChunk) {
				if chunk.Text != "" {
					emit(chunk.Text)
				}
			})
		}
		msgs := append([]ollama.Message{ollama.NewSystemMessage(system)}, history...)
		return cc.local.ChatStream(ctx, decision.Model, msgs, func(chunk ollama.StreamChunk) {
			if chunk.Content != "" {
				emit(chunk.Content)
			}
			if chunk.Done {
				cc.lastStats.Store(&ollama.ChatResponse{
					Model:        chunk.Model,
					EvalCount:    chunk.CompletionTokens,
					EvalDuration: int64(chunk.EvalDuration),
				})
			}
		})
	})
}

// Cancel stops the in-flight chat turn, if any.
func (cc *ChatController) Cancel() {
	cc.coord.Cancel(ChannelChat)
}

// TokensPerSecond reports the generation speed of the last finished
// local turn, or 0 when no turn has finished yet.
func (cc *ChatController) TokensPerSecond() float64 {
	if r := cc.lastStats.Load(); r != nil {
		return r.TokensPerSecond()
	}
	return 0
}

// history returns the transcript as provider-neutral messages, skipping
// the trailing empty assistant placeholder if present.
func (cc *ChatController) history() []ollama.Message {
	turns := cc.conversation.Turns
	msgs := make([]ollama.Message, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == "assistant" && turn.Content == "" {
			continue
		}
		msgs = append(msgs, ollama.Message{Role: turn.Role, Content: turn.Content})
	}
	return msgs
}

// toCloudMessages converts transcript messages to the cloud wire shape.
func toCloudMessages(msgs []ollama.Message) []cloud.Message {
	out := make([]cloud.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloud.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
