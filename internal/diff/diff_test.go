// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"strings"
	"testing"
)

func TestCompute_AllAdded(t *testing.T) {
	d := Compute("", "line1\nline2\nline3")

	if d.Stats.Additions != 3 {
		t.Errorf("Expected 3 additions, got %d", d.Stats.Additions)
	}
	if d.Stats.Deletions != 0 {
		t.Errorf("Expected 0 deletions, got %d", d.Stats.Deletions)
	}
}

func TestCompute_AllRemoved(t *testing.T) {
	d := Compute("line1\nline2\nline3", "")

	if d.Stats.Additions != 0 {
		t.Errorf("Expected 0 additions, got %d", d.Stats.Additions)
	}
	if d.Stats.Deletions != 3 {
		t.Errorf("Expected 3 deletions, got %d", d.Stats.Deletions)
	}
}

func TestCompute_Modified(t *testing.T) {
	d := Compute("line1\nline2\nline3", "line1\nmodified\nline3\nline4")

	if d.Stats.Additions != 2 {
		t.Errorf("Expected 2 additions, got %d", d.Stats.Additions)
	}
	if d.Stats.Deletions != 1 {
		t.Errorf("Expected 1 deletion, got %d", d.Stats.Deletions)
	}
	if !d.HasChanges() {
		t.Error("HasChanges() = false for a real change")
	}
}

func TestCompute_Identical(t *testing.T) {
	d := Compute("same\ntext", "same\ntext")

	if d.HasChanges() {
		t.Errorf("HasChanges() = true for identical input: %+v", d.Stats)
	}
	if len(d.Hunks) != 0 {
		t.Errorf("Expected no hunks, got %d", len(d.Hunks))
	}
}

func TestCompute_ContextLines(t *testing.T) {
	original := "a\nb\nc\nd\ne\nf\ng\nh"
	proposed := "a\nb\nc\nd\nE\nf\ng\nh"

	d := Compute(original, proposed)

	if len(d.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(d.Hunks))
	}

	hunk := d.Hunks[0]
	context := 0
	for _, line := range hunk.Lines {
		if line.Type == LineContext {
			context++
		}
	}
	// 3 lines of context each side of the single changed line.
	if context != 6 {
		t.Errorf("Expected 6 context lines, got %d", context)
	}
}

func TestCompute_DistantChangesSeparateHunks(t *testing.T) {
	var oldSB, newSB strings.Builder
	for i := 0; i < 30; i++ {
		oldSB.WriteString("line\n")
		if i == 2 || i == 27 {
			newSB.WriteString("changed\n")
		} else {
			newSB.WriteString("line\n")
		}
	}

	d := Compute(oldSB.String(), newSB.String())

	if len(d.Hunks) != 2 {
		t.Errorf("Expected 2 hunks for distant changes, got %d", len(d.Hunks))
	}
}

func TestCompute_LineNumbers(t *testing.T) {
	d := Compute("keep\nremove", "keep\nadd")

	var removed, added *Line
	for _, hunk := range d.Hunks {
		for i := range hunk.Lines {
			switch hunk.Lines[i].Type {
			case LineRemoved:
				removed = &hunk.Lines[i]
			case LineAdded:
				added = &hunk.Lines[i]
			}
		}
	}

	if removed == nil || removed.OldLine != 2 || removed.NewLine != 0 {
		t.Errorf("removed line numbering wrong: %+v", removed)
	}
	if added == nil || added.NewLine != 2 || added.OldLine != 0 {
		t.Errorf("added line numbering wrong: %+v", added)
	}
}

func TestFormatUnified(t *testing.T) {
	d := Compute("old line", "new line")
	out := FormatUnified("selection", d)

	if !strings.Contains(out, "--- a/selection") {
		t.Errorf("missing old header:\n%s", out)
	}
	if !strings.Contains(out, "+++ b/selection") {
		t.Errorf("missing new header:\n%s", out)
	}
	if !strings.Contains(out, "-old line") {
		t.Errorf("missing removed line:\n%s", out)
	}
	if !strings.Contains(out, "+new line") {
		t.Errorf("missing added line:\n%s", out)
	}
	if !strings.Contains(out, "@@ -1,1 +1,1 @@") {
		t.Errorf("missing hunk header:\n%s", out)
	}
}

func TestSummary(t *testing.T) {
	d := Compute("a\nb", "a\nc\nd")
	got := d.Summary()
	if got != "+2 -1" {
		t.Errorf("Summary() = %q, want %q", got, "+2 -1")
	}

	same := Compute("x", "x")
	if same.Summary() != "no changes" {
		t.Errorf("Summary() = %q, want %q", same.Summary(), "no changes")
	}
}

func TestCompute_TrailingNewlineNormalized(t *testing.T) {
	a := Compute("a\nb\n", "a\nb")
	if a.HasChanges() {
		t.Error("trailing final newline should not register as a change")
	}
}
