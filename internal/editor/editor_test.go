// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package editor

import "testing"

func TestBufferReplace(t *testing.T) {
	b := NewBuffer("hello world")

	if err := b.Replace(Range{Start: 6, End: 11}, "there"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := b.Text(); got != "hello there" {
		t.Errorf("Text = %q, want %q", got, "hello there")
	}
	if got := b.Cursor(); got != 11 {
		t.Errorf("Cursor = %d, want end of inserted text", got)
	}
}

func TestBufferReplaceOutOfBounds(t *testing.T) {
	b := NewBuffer("abc")
	if err := b.Replace(Range{Start: 1, End: 9}, "x"); err == nil {
		t.Error("out-of-bounds replace did not error")
	}
	if b.Text() != "abc" {
		t.Errorf("failed replace mutated text: %q", b.Text())
	}
}

func TestBufferRevisionBumpsOnMutationOnly(t *testing.T) {
	b := NewBuffer("abc")
	r0 := b.Revision()

	b.SetCursor(2)
	b.Select(Range{Start: 0, End: 1})
	if b.Revision() != r0 {
		t.Error("cursor/selection moves should not bump revision")
	}

	b.Type("x")
	if b.Revision() != r0+1 {
		t.Errorf("Revision = %d, want %d after insert", b.Revision(), r0+1)
	}

	if err := b.Replace(Range{Start: 0, End: 1}, "y"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if b.Revision() != r0+2 {
		t.Errorf("Revision = %d, want %d after replace", b.Revision(), r0+2)
	}
}

func TestBufferSelection(t *testing.T) {
	b := NewBuffer("func main() {}\n")

	b.Select(Range{Start: 5, End: 9})
	if got := b.SelectionText(); got != "main" {
		t.Errorf("SelectionText = %q, want main", got)
	}
	if b.Cursor() != 9 {
		t.Errorf("Cursor = %d, want selection end", b.Cursor())
	}

	b.ClearSelection()
	if _, ok := b.Selection(); ok {
		t.Error("selection survived ClearSelection")
	}
	if got := b.SelectionText(); got != "" {
		t.Errorf("SelectionText after clear = %q", got)
	}
}

func TestBufferSelectClampsToBounds(t *testing.T) {
	b := NewBuffer("abc")
	b.Select(Range{Start: -4, End: 99})
	r, ok := b.Selection()
	if !ok || r.Start != 0 || r.End != 3 {
		t.Errorf("Selection = %+v ok=%v, want clamped [0,3)", r, ok)
	}
}

func TestBufferTypeAppendsAtCursor(t *testing.T) {
	b := NewBuffer("ab")
	b.SetCursor(1)
	b.Type("X")
	if b.Text() != "aXb" {
		t.Errorf("Text = %q, want aXb", b.Text())
	}
	if b.Cursor() != 2 {
		t.Errorf("Cursor = %d, want 2", b.Cursor())
	}
}

func TestRangeHelpers(t *testing.T) {
	r := Range{Start: 2, End: 5}
	if r.Len() != 3 {
		t.Errorf("Len = %d", r.Len())
	}
	if r.IsEmpty() {
		t.Error("non-empty range reported empty")
	}
	if !r.Contains(2) || r.Contains(5) {
		t.Error("Contains is not half-open")
	}
	if !(Range{Start: 3, End: 3}).IsEmpty() {
		t.Error("empty range not reported empty")
	}
}
