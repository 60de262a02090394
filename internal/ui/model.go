// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the Bubble Tea shell around the AI coordinator: an
// editor pane with ghost text, a chat pane, and the inline-edit
// instruction bar. The shell only renders state the feature packages
// emit; all coordination lives below it.
package ui

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/morganforge/inkwell/internal/ai"
	"github.com/morganforge/inkwell/internal/completion"
	"github.com/morganforge/inkwell/internal/config"
	"github.com/morganforge/inkwell/internal/editor"
	"github.com/morganforge/inkwell/internal/inlineedit"
	"github.com/morganforge/inkwell/internal/router"
	"github.com/morganforge/inkwell/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// Focus identifies which pane receives keystrokes.
type Focus int

const (
	// FocusEditor sends keys to the document buffer.
	FocusEditor Focus = iota
	// FocusChat sends keys to the chat input.
	FocusChat
	// FocusInstruction sends keys to the inline-edit instruction bar.
	FocusInstruction
)

// ConfigReloadedMsg carries a freshly loaded configuration from the
// file watcher into the update loop.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// Model is the shell's Bubble Tea model.
type Model struct {
	cfg    *config.Config
	coord  *ai.Coordinator
	routes *router.Router
	chat   *ai.ChatController
	engine *completion.Engine
	inline *inlineedit.Controller
	buffer *editor.Buffer

	chatInput   textarea.Model
	instruction textarea.Model
	chatView    viewport.Model
	spin        spinner.Model
	markdown    *glamour.TermRenderer

	focus         Focus
	width, height int
	chatStreaming bool
	banner        string
	quitting      bool
}

// New assembles the shell around already-wired feature controllers.
func New(cfg *config.Config, coord *ai.Coordinator, routes *router.Router, chat *ai.ChatController, engine *completion.Engine, inline *inlineedit.Controller, buffer *editor.Buffer) *Model {
	chatInput := textarea.New()
	chatInput.Placeholder = "Ask anything (Enter to send)"
	chatInput.ShowLineNumbers = false
	chatInput.SetHeight(3)

	instruction := textarea.New()
	instruction.Placeholder = "Describe the edit (Enter to submit, Esc to cancel)"
	instruction.ShowLineNumbers = false
	instruction.SetHeight(1)

	spin := spinner.New(spinner.WithSpinner(spinner.Dot))

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		renderer = nil
	}

	return &Model{
		cfg:         cfg,
		coord:       coord,
		routes:      routes,
		chat:        chat,
		engine:      engine,
		inline:      inline,
		buffer:      buffer,
		chatInput:   chatInput,
		instruction: instruction,
		chatView:    viewport.New(40, 20),
		spin:        spin,
		markdown:    renderer,
	}
}

// Init starts the event listener and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.coord.WaitForEvent(), m.spin.Tick)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update is the single UI-owned execution context: every fragment,
// debounce expiry, and keystroke lands here in order.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case ai.EventMsg:
		cmd := m.handleEvent(msg.Event)
		return m, tea.Batch(cmd, m.coord.WaitForEvent())

	case completion.DebounceMsg:
		m.engine.OnDebounce(msg)
		return m, nil

	case ConfigReloadedMsg:
		m.cfg = msg.Config
		m.routes.Reload(router.TableFromConfig(msg.Config))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleEvent dispatches a coordinator event to its owning feature.
func (m *Model) handleEvent(ev ai.Event) tea.Cmd {
	switch ev.Channel {
	case ai.ChannelChat:
		if ev.Err != nil {
			m.banner = ev.Err.UserMessage()
			m.chat.Conversation().AppendToLast("\n\n*" + ev.Err.UserMessage() + "*")
			m.chatStreaming = false
		} else if ev.Final {
			m.chatStreaming = false
		} else {
			m.chat.Conversation().AppendToLast(ev.Text)
		}
		m.renderChat()

	case ai.ChannelCompletion:
		m.engine.HandleEvent(ev)

	case ai.ChannelInlineEdit:
		m.inline.HandleEvent(ev)
		if msg, ok := m.inline.ErrorMessage(); ok {
			m.banner = msg
			m.inline.Acknowledge()
		}
	}
	return nil
}

// handleKey routes keystrokes by focus and global bindings.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		m.coord.Close()
		return m, tea.Quit

	case "ctrl+t":
		m.toggleFocus()
		return m, nil

	case "ctrl+k":
		if m.focus == FocusEditor && m.inline.Begin() {
			m.focus = FocusInstruction
			m.instruction.Reset()
			m.instruction.Focus()
		}
		return m, nil

	case "ctrl+g":
		m.engine.SetEnabled(!m.engine.Enabled())
		return m, nil
	}

	m.banner = ""

	switch m.focus {
	case FocusEditor:
		return m.handleEditorKey(msg)
	case FocusChat:
		return m.handleChatKey(msg)
	case FocusInstruction:
		return m.handleInstructionKey(msg)
	}
	return m, nil
}

// handleEditorKey applies a keystroke to the document buffer and feeds
// the completion engine.
func (m *Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab":
		if _, ok := m.engine.Suggestion(); ok {
			m.engine.Accept()
			return m, nil
		}
		m.buffer.Type("\t")
		return m, m.engine.OnKeystroke()

	case "esc":
		m.engine.Dismiss()
		m.inline.Close()
		return m, nil

	case "enter":
		m.buffer.Type("\n")
		m.inline.OnSelectionChanged()
		return m, m.engine.OnKeystroke()

	case "backspace":
		if cur := m.buffer.Cursor(); cur > 0 {
			start := prevRuneStart(m.buffer.Text(), cur)
			_ = m.buffer.Replace(editor.Range{Start: start, End: cur}, "")
		}
		m.inline.OnSelectionChanged()
		return m, m.engine.OnKeystroke()

	case "left":
		m.buffer.SetCursor(prevRuneStart(m.buffer.Text(), m.buffer.Cursor()))
		m.inline.OnSelectionChanged()
		return m, nil

	case "right":
		m.buffer.SetCursor(nextRuneStart(m.buffer.Text(), m.buffer.Cursor()))
		m.inline.OnSelectionChanged()
		return m, nil

	case "ctrl+y":
		if m.inline.State() == inlineedit.StatePreviewing {
			if err := m.inline.Apply(); err != nil {
				m.banner = err.Error()
			}
		}
		return m, nil

	case "ctrl+n":
		if m.inline.State() == inlineedit.StatePreviewing {
			m.inline.Reject()
		}
		return m, nil
	}

	if msg.Type == tea.KeyRunes {
		m.buffer.Type(string(msg.Runes))
		m.inline.OnSelectionChanged()
		return m, m.engine.OnKeystroke()
	}
	return m, nil
}

// handleChatKey drives the chat input.
func (m *Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.chatInput.Value())
		if text == "" || m.chatStreaming {
			return m, nil
		}
		m.chatInput.Reset()
		m.chatStreaming = true
		m.chat.Send(text, m.buffer.Text(), "")
		m.renderChat()
		return m, nil

	case "esc":
		if m.chatStreaming {
			m.chat.Cancel()
			m.chatStreaming = false
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// handleInstructionKey drives the inline-edit instruction bar.
func (m *Model) handleInstructionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		text := strings.TrimSpace(m.instruction.Value())
		if text != "" {
			m.inline.SubmitInstruction(text, "")
		}
		m.instruction.Blur()
		m.focus = FocusEditor
		return m, nil

	case "esc":
		m.inline.Close()
		m.instruction.Blur()
		m.focus = FocusEditor
		return m, nil
	}

	var cmd tea.Cmd
	m.instruction, cmd = m.instruction.Update(msg)
	return m, cmd
}

// prevRuneStart steps one rune left of cur in text, clamped at 0, so
// cursor movement never lands inside a multi-byte character.
func prevRuneStart(text string, cur int) int {
	if cur <= 0 {
		return 0
	}
	if cur > len(text) {
		cur = len(text)
	}
	_, size := utf8.DecodeLastRuneInString(text[:cur])
	if size == 0 {
		return cur - 1
	}
	return cur - size
}

// nextRuneStart steps one rune right of cur, clamped at the text end.
func nextRuneStart(text string, cur int) int {
	if cur < 0 {
		cur = 0
	}
	if cur >= len(text) {
		return len(text)
	}
	_, size := utf8.DecodeRuneInString(text[cur:])
	if size == 0 {
		return cur + 1
	}
	return cur + size
}

// toggleFocus switches between the editor and chat panes.
func (m *Model) toggleFocus() {
	if m.focus == FocusChat {
		m.focus = FocusEditor
		m.chatInput.Blur()
		return
	}
	if m.focus == FocusInstruction {
		return
	}
	m.focus = FocusChat
	m.chatInput.Focus()
}

// resize recomputes pane dimensions.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	chatWidth := width / 3
	if chatWidth < 30 {
		chatWidth = 30
	}
	m.chatView.Width = chatWidth - 4
	m.chatView.Height = height - 8
	m.chatInput.SetWidth(chatWidth - 4)
	m.instruction.SetWidth(width - 10)

	if renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(m.chatView.Width),
	); err == nil {
		m.markdown = renderer
	}
	m.renderChat()
}

// renderChat re-renders the transcript into the chat viewport.
func (m *Model) renderChat() {
	var sb strings.Builder
	for _, turn := range m.chat.Conversation().Turns {
		if turn.Role == "user" {
			sb.WriteString(styles.UserLabel.Render("You") + "\n")
			sb.WriteString(turn.Content + "\n\n")
			continue
		}
		sb.WriteString(styles.AssistantLabel.Render("Assistant") + "\n")
		content := turn.Content
		if m.markdown != nil && content != "" {
			if rendered, err := m.markdown.Render(content); err == nil {
				content = rendered
			}
		}
		sb.WriteString(content + "\n")
	}
	m.chatView.SetContent(sb.String())
	m.chatView.GotoBottom()
}
