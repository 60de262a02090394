// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package editor defines the boundary between the AI coordinator and
// the text being edited. The coordinator and its clients only ever see
// this interface; the TUI shell and the tests share the in-memory
// Buffer implementation.
package editor

import (
	"fmt"
	"sync"
)

// Range is a half-open [Start, End) byte range into the document.
type Range struct {
	Start int
	End   int
}

// Len returns the length of the range in bytes.
func (r Range) Len() int { return r.End - r.Start }

// IsEmpty reports whether the range selects nothing.
func (r Range) IsEmpty() bool { return r.End <= r.Start }

// Contains reports whether pos falls inside the range.
func (r Range) Contains(pos int) bool { return pos >= r.Start && pos < r.End }

// Editor is what the AI features need from the text widget: read the
// document, know where the cursor and selection are, and replace a
// range. File persistence never crosses this boundary.
type Editor interface {
	// Text returns the full document text.
	Text() string

	// Cursor returns the cursor position as a byte offset into Text.
	Cursor() int

	// Selection returns the active selection range, or ok=false when
	// nothing is selected.
	Selection() (r Range, ok bool)

	// SelectionText returns the text covered by the active selection,
	// or "" when nothing is selected.
	SelectionText() string

	// Revision returns a counter incremented on every mutation. Anchors
	// captured at submit time compare revisions to detect staleness.
	Revision() uint64

	// Replace substitutes text for the given range and moves the cursor
	// to the end of the inserted text.
	Replace(r Range, text string) error

	// Insert places text at pos and moves the cursor past it.
	Insert(pos int, text string) error
}

// =============================================================================
// BUFFER
// =============================================================================

// Buffer is an in-memory Editor implementation.
type Buffer struct {
	mu        sync.Mutex
	text      string
	cursor    int
	selection Range
	selected  bool
	revision  uint64
}

// NewBuffer creates a buffer with initial content and the cursor at 0.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

// Text returns the full document text.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Cursor returns the cursor byte offset.
func (b *Buffer) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// SetCursor moves the cursor, clamped to the document bounds. Moving
// the cursor clears the selection but does not bump the revision; only
// text mutations do.
func (b *Buffer) SetCursor(pos int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = clamp(pos, 0, len(b.text))
	b.selected = false
}

// Selection returns the active selection range.
func (b *Buffer) Selection() (Range, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection, b.selected
}

// SelectionText returns the selected text, or "".
func (b *Buffer) SelectionText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.selected {
		return ""
	}
	return b.text[b.selection.Start:b.selection.End]
}

// Select sets the selection range, clamped to the document bounds.
func (b *Buffer) Select(r Range) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r.Start = clamp(r.Start, 0, len(b.text))
	r.End = clamp(r.End, r.Start, len(b.text))
	b.selection = r
	b.selected = true
	b.cursor = r.End
}

// ClearSelection drops the active selection.
func (b *Buffer) ClearSelection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = false
}

// Revision returns the mutation counter.
func (b *Buffer) Revision() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.revision
}

// Replace substitutes text for the given range.
func (b *Buffer) Replace(r Range, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.Start < 0 || r.End > len(b.text) || r.End < r.Start {
		return fmt.Errorf("replace range [%d,%d) out of bounds (len %d)", r.Start, r.End, len(b.text))
	}
	b.text = b.text[:r.Start] + text + b.text[r.End:]
	b.cursor = r.Start + len(text)
	b.selected = false
	b.revision++
	return nil
}

// Insert places text at pos.
func (b *Buffer) Insert(pos int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos < 0 || pos > len(b.text) {
		return fmt.Errorf("insert position %d out of bounds (len %d)", pos, len(b.text))
	}
	b.text = b.text[:pos] + text + b.text[pos:]
	b.cursor = pos + len(text)
	b.selected = false
	b.revision++
	return nil
}

// Type appends text at the cursor, as keystrokes would.
func (b *Buffer) Type(text string) {
	b.mu.Lock()
	pos := b.cursor
	b.mu.Unlock()
	_ = b.Insert(pos, text)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
