// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inlineedit implements selection-scoped AI editing: capture a
// selection, send it with an instruction, preview the proposed
// replacement as a diff, then apply or reject. The original text is
// never mutated until Apply.
package inlineedit

import (
	"context"
	"fmt"
	"strings"

	"github.com/morganforge/inkwell/internal/ai"
	"github.com/morganforge/inkwell/internal/cloud"
	"github.com/morganforge/inkwell/internal/diff"
	"github.com/morganforge/inkwell/internal/editor"
	"github.com/morganforge/inkwell/internal/ollama"
	"github.com/morganforge/inkwell/internal/router"
)

// =============================================================================
// PROMPTS
// =============================================================================

const codingSystemPrompt = "You are a code editor. Edit the code according to the instruction.\n" +
	"Return ONLY the edited code. No explanations, no markdown fences, no commentary."

const writingSystemPrompt = "You are a text editor. Edit the text according to the instruction.\n" +
	"Return ONLY the edited text. No explanations, no markdown fences, no commentary."

// BuildPrompt frames an instruction and the selected text so the model
// produces only replacement content.
func BuildPrompt(instruction, selected, mode string) (system, user string) {
	if mode == "writing" {
		return writingSystemPrompt,
			fmt.Sprintf("Instruction: %s\n\nText:\n%s\n\nEdited text:", instruction, selected)
	}
	return codingSystemPrompt,
		fmt.Sprintf("Instruction: %s\n\nCode:\n%s\n\nEdited code:", instruction, selected)
}

// StripFences removes a surrounding markdown code fence, which models
// add despite instructions not to.
func StripFences(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// MinSelectionChars is the minimum number of non-whitespace characters
// a selection needs before an inline edit can open.
const MinSelectionChars = 2

// selectionLargeEnough applies the minimum-selection guard.
func selectionLargeEnough(text string) bool {
	count := 0
	for _, r := range text {
		if !strings.ContainsRune(" \t\n\r", r) {
			count++
			if count >= MinSelectionChars {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the inline-edit lifecycle state.
type State int

const (
	// StateIdle means no inline edit is open.
	StateIdle State = iota
	// StateCapturing means a selection is captured and the instruction
	// input is open.
	StateCapturing
	// StateGenerating means a session is streaming.
	StateGenerating
	// StatePreviewing means a proposed replacement and its diff are
	// ready for apply/reject.
	StatePreviewing
	// StateFailed means the session errored; the message is shown, then
	// the next interaction returns to idle.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StateGenerating:
		return "generating"
	case StatePreviewing:
		return "previewing"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// LocalStreamer is the slice of the Ollama client inline edit needs.
type LocalStreamer interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error
}

// CloudStreamer is the slice of the Anthropic client inline edit needs.
type CloudStreamer interface {
	ChatStream(ctx context.Context, model string, system string, messages []cloud.Message, callback cloud.StreamCallback) error
}

// Controller is the inline-edit channel's client. All methods run on
// the UI-owned update loop.
type Controller struct {
	coord  *ai.Coordinator
	routes *router.Router
	local  LocalStreamer
	cloud  CloudStreamer
	ed     editor.Editor
	mode   string

	state     State
	selection editor.Range
	original  string
	revision  uint64
	sessionID uint64
	pending   strings.Builder
	proposed  string
	preview   *diff.Result
	errMsg    string
}

// NewController wires the inline-edit channel.
func NewController(coord *ai.Coordinator, routes *router.Router, local LocalStreamer, cloudClient CloudStreamer, ed editor.Editor, mode string) *Controller {
	return &Controller{
		coord:  coord,
		routes: routes,
		local:  local,
		cloud:  cloudClient,
		ed:     ed,
		mode:   mode,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Original returns the captured selection text.
func (c *Controller) Original() string { return c.original }

// Proposed returns the model's replacement, when previewing.
func (c *Controller) Proposed() (string, bool) {
	if c.state != StatePreviewing {
		return "", false
	}
	return c.proposed, true
}

// Preview returns the diff between original and proposed, when
// previewing.
func (c *Controller) Preview() (*diff.Result, bool) {
	if c.state != StatePreviewing {
		return nil, false
	}
	return c.preview, true
}

// ErrorMessage returns the failure message, when failed.
func (c *Controller) ErrorMessage() (string, bool) {
	if c.state != StateFailed {
		return "", false
	}
	return c.errMsg, true
}

// Begin captures the current selection and opens the instruction input.
// Returns false when there is no usable selection.
func (c *Controller) Begin() bool {
	c.Close()

	r, ok := c.ed.Selection()
	if !ok || r.IsEmpty() {
		return false
	}
	text := c.ed.SelectionText()
	if !selectionLargeEnough(text) {
		return false
	}

	c.selection = r
	c.original = text
	c.revision = c.ed.Revision()
	c.state = StateCapturing
	return true
}

// SubmitInstruction starts generation for the captured selection.
func (c *Controller) SubmitInstruction(instruction, modelOverride string) {
	if c.state != StateCapturing || strings.TrimSpace(instruction) == "" {
		return
	}

	decision := c.routes.Resolve(router.CategoryInlineEdit, modelOverride)
	system, user := BuildPrompt(instruction, c.original, c.mode)

	c.pending.Reset()
	c.state = StateGenerating
	c.sessionID = c.coord.Submit(ai.ChannelInlineEdit, func(ctx context.Context, emit func(string)) error {
		if decision.Provider == router.ProviderCloud {
			return c.cloud.ChatStream(ctx, decision.Model, system, []cloud.Message{cloud.NewUserMessage(user)}, func(chunk cloud.StreamChunk) {
				if chunk.Text != "" {
					emit(chunk.Text)
				}
			})
		}
		msgs := []ollama.Message{
			ollama.NewSystemMessage(system),
			ollama.NewUserMessage(user),
		}
		return c.local.ChatStream(ctx, decision.Model, msgs, func(chunk ollama.StreamChunk) {
			if chunk.Content != "" {
				emit(chunk.Content)
			}
		})
	})
}

// HandleEvent consumes a coordinator event for the inline-edit channel.
func (c *Controller) HandleEvent(ev ai.Event) {
	if ev.Channel != ai.ChannelInlineEdit || ev.SessionID != c.sessionID || c.state != StateGenerating {
		return
	}

	if !ev.Final {
		c.pending.WriteString(ev.Text)
		return
	}

	if ev.Err != nil {
		c.state = StateFailed
		c.errMsg = ev.Err.UserMessage()
		return
	}

	proposed := StripFences(c.pending.String())
	if strings.TrimSpace(proposed) == "" {
		c.state = StateFailed
		c.errMsg = "The model returned an empty edit."
		return
	}

	c.proposed = proposed
	c.preview = diff.Compute(c.original, proposed)
	c.state = StatePreviewing
}

// Apply replaces the captured selection with the proposed text.
// A document edited since capture invalidates the range; the edit is
// abandoned instead of applied at a wrong offset.
func (c *Controller) Apply() error {
	if c.state != StatePreviewing {
		return fmt.Errorf("nothing to apply")
	}
	if c.ed.Revision() != c.revision {
		c.Close()
		return fmt.Errorf("document changed since the edit was captured")
	}
	err := c.ed.Replace(c.selection, c.proposed)
	c.reset()
	return err
}

// Reject discards the proposal. The original text was never mutated.
func (c *Controller) Reject() {
	if c.state != StatePreviewing {
		return
	}
	c.reset()
}

// Acknowledge clears a failure message and returns to idle.
func (c *Controller) Acknowledge() {
	if c.state == StateFailed {
		c.reset()
	}
}

// OnSelectionChanged reacts to the editor selection or document moving
// under an open inline edit: the session is cancelled and the edit
// closes. Call from the update loop on editor events.
func (c *Controller) OnSelectionChanged() {
	if c.state == StateIdle {
		return
	}
	if c.ed.Revision() != c.revision {
		c.Close()
		return
	}
	r, ok := c.ed.Selection()
	if !ok || r != c.selection {
		c.Close()
	}
}

// Close cancels any active session and returns to idle.
func (c *Controller) Close() {
	if c.state == StateGenerating {
		c.coord.Cancel(ai.ChannelInlineEdit)
	}
	c.reset()
}

func (c *Controller) reset() {
	c.state = StateIdle
	c.pending.Reset()
	c.proposed = ""
	c.preview = nil
	c.errMsg = ""
	c.sessionID = 0
}
