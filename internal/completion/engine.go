// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/inkwell/internal/ai"
	"github.com/morganforge/inkwell/internal/editor"
	"github.com/morganforge/inkwell/internal/ollama"
	"github.com/morganforge/inkwell/internal/router"
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the ghost-text lifecycle state.
type State int

const (
	// StateIdle means no suggestion activity.
	StateIdle State = iota
	// StateDebouncing means a keystroke started the quiet-period timer.
	StateDebouncing
	// StateRequesting means a session is streaming.
	StateRequesting
	// StateDisplaying means ghost text is on screen.
	StateDisplaying
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateRequesting:
		return "requesting"
	case StateDisplaying:
		return "displaying"
	default:
		return "idle"
	}
}

// anchor pins a request to the document position and revision captured
// at submit time. A suggestion arriving after the anchor moved is stale
// and never shown.
type anchor struct {
	pos      int
	revision uint64
}

// Generator is the slice of the Ollama client the engine needs. Ghost
// text always runs against the local provider; FIM raw prompts are not
// part of the cloud contract.
type Generator interface {
	GenerateStream(ctx context.Context, model, prompt string, opts *ollama.Options, callback ollama.StreamCallback) error
}

// Config holds the engine's tunables, sourced from configuration.
type Config struct {
	Enabled  bool
	Debounce time.Duration
	Window   Window
	Limits   Limits
}

// Engine is the completion channel's client. All methods run on the
// UI-owned update loop; the only concurrency is inside the coordinator.
type Engine struct {
	coord  *ai.Coordinator
	routes *router.Router
	local  Generator
	ed     editor.Editor
	cfg    Config

	state      State
	debounceID int
	sessionID  uint64
	anchor     anchor
	pending    strings.Builder
	suggestion string
}

// NewEngine wires the completion channel.
func NewEngine(coord *ai.Coordinator, routes *router.Router, local Generator, ed editor.Editor, cfg Config) *Engine {
	return &Engine{
		coord:  coord,
		routes: routes,
		local:  local,
		ed:     ed,
		cfg:    cfg,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Enabled reports whether ghost text is on.
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

// SetEnabled toggles ghost text. Disabling cancels any activity.
func (e *Engine) SetEnabled(enabled bool) {
	e.cfg.Enabled = enabled
	if !enabled {
		e.Dismiss()
	}
}

// Suggestion returns the ghost text to render, when displaying.
func (e *Engine) Suggestion() (string, bool) {
	if e.state != StateDisplaying {
		return "", false
	}
	return e.suggestion, true
}

// =============================================================================
// TRIGGERS
// =============================================================================

// DebounceMsg fires when the quiet-period timer for a keystroke burst
// expires. Stale generations are ignored, so a burst submits at most
// one request.
type DebounceMsg struct {
	Generation int
}

// OnKeystroke handles an edit keystroke: any shown suggestion is
// superseded and the debounce timer restarts. Returns the timer command
// or nil when disabled.
func (e *Engine) OnKeystroke() tea.Cmd {
	if !e.cfg.Enabled {
		return nil
	}
	if e.state == StateDisplaying || e.state == StateRequesting {
		e.coord.Cancel(ai.ChannelCompletion)
		e.suggestion = ""
	}
	e.state = StateDebouncing
	e.debounceID++
	gen := e.debounceID
	return tea.Tick(e.cfg.Debounce, func(time.Time) tea.Msg {
		return DebounceMsg{Generation: gen}
	})
}

// OnDebounce handles timer expiry. Only the newest generation while
// still debouncing submits; earlier timers from the same burst fall
// through silently.
func (e *Engine) OnDebounce(msg DebounceMsg) {
	if e.state != StateDebouncing || msg.Generation != e.debounceID {
		return
	}
	e.submit()
}

// submit captures the anchor, builds the FIM prompt, and starts a
// session on the completion channel.
func (e *Engine) submit() {
	decision := e.routes.Resolve(router.CategoryCompletion, "")
	if decision.Provider != router.ProviderLocal {
		// FIM needs the local raw-prompt endpoint.
		log.Printf("COMPLETION: route %s is not local, skipping", decision.Model)
		e.state = StateIdle
		return
	}

	text := e.ed.Text()
	cursor := e.ed.Cursor()
	e.anchor = anchor{pos: cursor, revision: e.ed.Revision()}

	prefix, suffix := ExtractContext(text, cursor, e.cfg.Window)
	prompt := BuildPrompt(prefix, suffix)

	e.pending.Reset()
	e.state = StateRequesting
	model := decision.Model
	e.sessionID = e.coord.Submit(ai.ChannelCompletion, func(ctx context.Context, emit func(string)) error {
		opts := &ollama.Options{
			Temperature: 0.2,
			NumPredict:  256,
			Stop:        []string{FIMEnd, "<|endoftext|>"},
		}
		return e.local.GenerateStream(ctx, model, prompt, opts, func(chunk ollama.StreamChunk) {
			if chunk.Content != "" {
				emit(chunk.Content)
			}
		})
	})
}

// =============================================================================
// DELIVERY
// =============================================================================

// HandleEvent consumes a coordinator event for the completion channel.
// Failures are logged and dropped: ghost text never shows an error.
func (e *Engine) HandleEvent(ev ai.Event) {
	if ev.Channel != ai.ChannelCompletion || ev.SessionID != e.sessionID {
		return
	}

	if !ev.Final {
		e.pending.WriteString(ev.Text)
		return
	}

	if ev.Err != nil {
		log.Printf("COMPLETION: session %d dropped: %v", ev.SessionID, ev.Err)
		e.toIdle()
		return
	}

	// Staleness is checked at display time: the anchor must be exactly
	// where it was at submit, with no intervening edits.
	if e.ed.Cursor() != e.anchor.pos || e.ed.Revision() != e.anchor.revision {
		e.toIdle()
		return
	}

	cleaned := Clean(e.pending.String(), e.cfg.Limits)
	if cleaned == "" {
		e.toIdle()
		return
	}

	e.suggestion = cleaned
	e.state = StateDisplaying
}

// Accept inserts the shown suggestion at its anchor and clears it.
func (e *Engine) Accept() {
	if e.state != StateDisplaying {
		return
	}
	if err := e.ed.Insert(e.anchor.pos, e.suggestion); err != nil {
		log.Printf("COMPLETION: accept failed: %v", err)
	}
	e.toIdle()
}

// Dismiss discards any suggestion and cancels the in-flight session.
func (e *Engine) Dismiss() {
	e.coord.Cancel(ai.ChannelCompletion)
	e.toIdle()
}

func (e *Engine) toIdle() {
	e.state = StateIdle
	e.suggestion = ""
	e.pending.Reset()
	e.sessionID = 0
}
