// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package completion implements ghost-text code completion: a debounced
// trigger, fill-in-middle prompt construction, and a cleanup pass that
// trims raw model output into a showable suggestion.
package completion

import (
	"strings"
	"unicode/utf8"

	"github.com/morganforge/inkwell/internal/util"
)

// =============================================================================
// FIM PROMPT
// =============================================================================

// DeepSeek Coder FIM tokens. CodeGemma and Qwen coder models accept the
// same framing.
const (
	FIMBegin = "<｜fim▁begin｜>"
	FIMHole  = "<｜fim▁hole｜>"
	FIMEnd   = "<｜fim▁end｜>"
)

// BuildPrompt assembles a fill-in-middle prompt from the text before
// and after the cursor.
func BuildPrompt(prefix, suffix string) string {
	return FIMBegin + prefix + FIMHole + suffix + FIMEnd
}

// Window bounds how much surrounding text goes into the prompt.
type Window struct {
	PrefixMaxLines int
	SuffixMaxLines int
}

// ExtractContext slices the document around a cursor byte offset into a
// bounded prefix and suffix. The prefix covers up to PrefixMaxLines
// lines above the cursor plus the current line up to it; the suffix
// covers the rest of the current line plus up to SuffixMaxLines lines
// below.
func ExtractContext(text string, cursor int, w Window) (prefix, suffix string) {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(text) {
		cursor = len(text)
	}

	before := text[:cursor]
	after := text[cursor:]

	beforeLines := strings.Split(before, "\n")
	// The last element is the current line up to the cursor; everything
	// before it is whole lines above.
	keepFrom := len(beforeLines) - 1 - w.PrefixMaxLines
	if keepFrom < 0 {
		keepFrom = 0
	}
	prefix = strings.Join(beforeLines[keepFrom:], "\n")

	afterLines := strings.Split(after, "\n")
	// The first element is the rest of the current line.
	keepTo := 1 + w.SuffixMaxLines
	if keepTo > len(afterLines) {
		keepTo = len(afterLines)
	}
	suffix = strings.Join(afterLines[:keepTo], "\n")

	return prefix, suffix
}

// =============================================================================
// RESPONSE CLEANUP
// =============================================================================

// endMarkers are end-of-sequence artifacts FIM models leak into output.
var endMarkers = []string{"<|endoftext|>", "<|fim", "</s>", "<|end"}

// stopPatterns mark natural code boundaries where a suggestion should
// stop: a blank line or a new top-level definition.
var stopPatterns = []string{"\n\n", "\ndef ", "\nclass ", "\nfunc ", "\n# ", "\nif __name__"}

// Limits bound the size of a shown suggestion.
type Limits struct {
	MaxLines int
	MaxChars int
}

// Clean trims a raw FIM response into a showable suggestion. Returns ""
// when nothing usable remains.
func Clean(response string, limits Limits) string {
	text := response

	for _, marker := range endMarkers {
		if idx := strings.Index(text, marker); idx != -1 {
			text = text[:idx]
		}
	}

	for _, pattern := range stopPatterns {
		if idx := strings.Index(text, pattern); idx > 0 {
			text = text[:idx]
			break
		}
	}

	if limits.MaxLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > limits.MaxLines {
			lines = lines[:limits.MaxLines]
		}
		text = strings.Join(lines, "\n")
	}

	if limits.MaxChars > 0 && utf8.RuneCountInString(text) > limits.MaxChars {
		text = util.TruncateRunes(text, limits.MaxChars)
		// Don't cut mid-line; trim back to the last whole line.
		if lastNL := strings.LastIndex(text, "\n"); lastNL > 0 {
			text = text[:lastNL]
		}
	}

	return strings.TrimRight(text, " \t\n")
}
