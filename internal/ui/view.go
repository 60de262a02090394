// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/inkwell/internal/ai"
	"github.com/morganforge/inkwell/internal/completion"
	"github.com/morganforge/inkwell/internal/diff"
	"github.com/morganforge/inkwell/internal/inlineedit"
	"github.com/morganforge/inkwell/internal/ui/styles"
	"github.com/morganforge/inkwell/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the editor pane, the chat pane, and the status line.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "loading..."
	}

	chatWidth := m.width / 3
	if chatWidth < 30 {
		chatWidth = 30
	}
	editorWidth := m.width - chatWidth - 2
	paneHeight := m.height - 4

	editorPane := m.renderEditorPane(editorWidth, paneHeight)
	chatPane := m.renderChatPane(chatWidth, paneHeight)

	body := lipgloss.JoinHorizontal(lipgloss.Top, editorPane, chatPane)

	var sections []string
	sections = append(sections, body)
	if m.focus == FocusInstruction {
		sections = append(sections, m.renderInstructionBar())
	}
	sections = append(sections, m.renderStatusBar())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderEditorPane renders the document with the cursor, ghost text, and
// any pending inline-edit preview.
func (m *Model) renderEditorPane(width, height int) string {
	style := styles.Pane
	if m.focus == FocusEditor {
		style = styles.PaneFocused
	}

	var sb strings.Builder
	sb.WriteString(styles.Title.Render("Document") + "\n\n")
	sb.WriteString(m.renderDocument())

	if preview, ok := m.inline.Preview(); ok && m.inline.State() == inlineedit.StatePreviewing {
		sb.WriteString("\n\n")
		sb.WriteString(styles.Title.Render("Proposed edit") + "\n")
		sb.WriteString(renderDiff(preview))
		sb.WriteString("\n" + styles.StatusBar.Render("ctrl+y apply  ctrl+n reject"))
	}

	return style.Width(width).Height(height).Render(sb.String())
}

// renderDocument interleaves the buffer text with the cursor mark and,
// when a suggestion is displayed, the ghost text at the cursor.
func (m *Model) renderDocument() string {
	text := m.buffer.Text()
	cur := m.buffer.Cursor()
	if cur > len(text) {
		cur = len(text)
	}

	var sb strings.Builder
	sb.WriteString(text[:cur])
	if suggestion, ok := m.engine.Suggestion(); ok {
		sb.WriteString(styles.GhostText.Render(suggestion))
		sb.WriteString(styles.StatusBar.Render(" [tab]"))
	} else {
		sb.WriteString(styles.Title.Render("|"))
	}
	sb.WriteString(text[cur:])
	return sb.String()
}

// renderDiff renders preview hunks with unified-diff prefixes.
func renderDiff(res *diff.Result) string {
	var sb strings.Builder
	sb.WriteString(styles.DiffMeta.Render(res.Summary()) + "\n")
	for _, hunk := range res.Hunks {
		header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", hunk.OldStart, hunk.OldCount, hunk.NewStart, hunk.NewCount)
		sb.WriteString(styles.DiffMeta.Render(header) + "\n")
		for _, line := range hunk.Lines {
			rendered := line.Type.Prefix() + line.Content
			switch line.Type {
			case diff.LineAdded:
				rendered = styles.DiffAdd.Render(rendered)
			case diff.LineRemoved:
				rendered = styles.DiffRemove.Render(rendered)
			}
			sb.WriteString(rendered + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderChatPane renders the transcript viewport above the input box.
func (m *Model) renderChatPane(width, height int) string {
	style := styles.Pane
	if m.focus == FocusChat {
		style = styles.PaneFocused
	}

	title := styles.Title.Render("Chat")
	if m.chatStreaming {
		title += " " + styles.StatusActive.Render(m.spin.View())
	}

	content := title + "\n\n" + m.chatView.View() + "\n" + m.chatInput.View()
	return style.Width(width).Height(height).Render(content)
}

// renderInstructionBar renders the inline-edit instruction input.
func (m *Model) renderInstructionBar() string {
	return styles.Prompt.Render("Edit: ") + m.instruction.View()
}

// renderStatusBar renders mode indicators, the active-session count, and
// any error banner, truncated to the terminal width.
func (m *Model) renderStatusBar() string {
	parts := []string{
		"ctrl+t focus",
		"ctrl+k edit",
		"ctrl+g completions",
		"ctrl+c quit",
	}

	if m.engine.Enabled() {
		parts = append(parts, "completions:on")
	} else {
		parts = append(parts, "completions:off")
	}
	if m.engine.State() == completion.StateRequesting {
		parts = append(parts, styles.StatusActive.Render("completing "+m.spin.View()))
	}
	if m.inline.State() == inlineedit.StateGenerating {
		parts = append(parts, styles.StatusActive.Render("editing "+m.spin.View()))
	}
	if tps := m.chat.TokensPerSecond(); tps > 0 {
		parts = append(parts, fmt.Sprintf("%.1f tok/s", tps))
	}
	active := 0
	for _, ch := range []ai.Channel{ai.ChannelChat, ai.ChannelCompletion, ai.ChannelInlineEdit} {
		if m.coord.Active(ch) != 0 {
			active++
		}
	}
	if active > 0 {
		parts = append(parts, fmt.Sprintf("%d active", active))
	}

	line := styles.StatusBar.Render(strings.Join(parts, "  "))
	if m.banner != "" {
		banner := util.TruncateWidth(util.FirstLine(m.banner), m.width/2)
		line = styles.ErrorBanner.Render(banner) + "  " + line
	}
	return line
}
