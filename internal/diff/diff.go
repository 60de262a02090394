// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff computes line-granularity diffs between an original text
// region and a proposed replacement, for preview before applying an edit.
package diff

import (
	"fmt"
	"strings"
)

// =============================================================================
// LINE TYPES
// =============================================================================

// LineType classifies a single diff line.
type LineType int

const (
	// LineContext represents an unchanged line
	LineContext LineType = iota
	// LineAdded represents a line present only in the proposed text
	LineAdded
	// LineRemoved represents a line present only in the original text
	LineRemoved
)

// String returns the string representation of a line type.
func (t LineType) String() string {
	switch t {
	case LineContext:
		return "context"
	case LineAdded:
		return "added"
	case LineRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Prefix returns the unified-diff prefix character for this line type.
func (t LineType) Prefix() string {
	switch t {
	case LineContext:
		return " "
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// =============================================================================
// LINES AND HUNKS
// =============================================================================

// Line is a single line in a diff.
type Line struct {
	Type    LineType
	Content string
	OldLine int // 1-based line number in the original (0 if added)
	NewLine int // 1-based line number in the proposal (0 if removed)
}

// Hunk is a contiguous run of changes plus surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Stats summarizes a diff.
type Stats struct {
	Additions int
	Deletions int
}

// Result is a complete diff between an original region and its proposed
// replacement.
type Result struct {
	Original string
	Proposed string
	Hunks    []Hunk
	Stats    Stats
}

// HasChanges reports whether the proposal differs from the original.
func (r *Result) HasChanges() bool {
	return r.Stats.Additions > 0 || r.Stats.Deletions > 0
}

// =============================================================================
// COMPUTATION
// =============================================================================

// Compute diffs original against proposed using an LCS line alignment and
// groups the result into hunks with context.
func Compute(original, proposed string) *Result {
	res := &Result{
		Original: original,
		Proposed: proposed,
	}

	oldLines := splitLines(original)
	newLines := splitLines(proposed)

	lines := alignLines(oldLines, newLines)
	res.Hunks = groupIntoHunks(lines)

	for _, line := range lines {
		switch line.Type {
		case LineAdded:
			res.Stats.Additions++
		case LineRemoved:
			res.Stats.Deletions++
		}
	}

	return res
}

// splitLines splits content into lines, dropping the empty trailing entry a
// final newline produces.
func splitLines(content string) []string {
	if content == "" {
		return []string{}
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// alignLines walks both texts against their longest common subsequence,
// emitting context, removed, and added lines in order.
func alignLines(oldLines, newLines []string) []Line {
	var result []Line

	if len(oldLines) == 0 && len(newLines) == 0 {
		return result
	}
	if len(oldLines) == 0 {
		for i, line := range newLines {
			result = append(result, Line{Type: LineAdded, Content: line, NewLine: i + 1})
		}
		return result
	}
	if len(newLines) == 0 {
		for i, line := range oldLines {
			result = append(result, Line{Type: LineRemoved, Content: line, OldLine: i + 1})
		}
		return result
	}

	lcs := longestCommonSubsequence(oldLines, newLines)

	oldIdx, newIdx, lcsIdx := 0, 0, 0
	for oldIdx < len(oldLines) || newIdx < len(newLines) {
		if lcsIdx < len(lcs) &&
			oldIdx < len(oldLines) && newIdx < len(newLines) &&
			oldLines[oldIdx] == newLines[newIdx] &&
			oldLines[oldIdx] == lcs[lcsIdx] {
			result = append(result, Line{
				Type:    LineContext,
				Content: oldLines[oldIdx],
				OldLine: oldIdx + 1,
				NewLine: newIdx + 1,
			})
			oldIdx++
			newIdx++
			lcsIdx++
		} else if oldIdx < len(oldLines) && (lcsIdx >= len(lcs) || oldLines[oldIdx] != lcs[lcsIdx]) {
			result = append(result, Line{
				Type:    LineRemoved,
				Content: oldLines[oldIdx],
				OldLine: oldIdx + 1,
			})
			oldIdx++
		} else if newIdx < len(newLines) {
			result = append(result, Line{
				Type:    LineAdded,
				Content: newLines[newIdx],
				NewLine: newIdx + 1,
			})
			newIdx++
		}
	}

	return result
}

// longestCommonSubsequence computes the LCS of two line slices with the
// standard dynamic-programming table.
func longestCommonSubsequence(a, b []string) []string {
	m, n := len(a), len(b)

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	var lcs []string
	i, j := m, n
	for i > 0 && j > 0 {
		if a[i-1] == b[j-1] {
			lcs = append([]string{a[i-1]}, lcs...)
			i--
			j--
		} else if dp[i-1][j] > dp[i][j-1] {
			i--
		} else {
			j--
		}
	}

	return lcs
}

// groupIntoHunks groups diff lines into hunks, each carrying up to three
// context lines on either side of a run of changes.
func groupIntoHunks(lines []Line) []Hunk {
	if len(lines) == 0 {
		return nil
	}

	const contextLines = 3

	var hunks []Hunk
	var current *Hunk

	for i, line := range lines {
		isChange := line.Type != LineContext

		if current == nil && isChange {
			current = &Hunk{}

			contextStart := max(0, i-contextLines)
			for j := contextStart; j < i; j++ {
				current.Lines = append(current.Lines, lines[j])
				if lines[j].OldLine > 0 {
					current.OldCount++
				}
				if lines[j].NewLine > 0 {
					current.NewCount++
				}
			}

			if len(current.Lines) > 0 {
				first := current.Lines[0]
				if first.OldLine > 0 {
					current.OldStart = first.OldLine
				} else {
					current.OldStart = line.OldLine
				}
				if first.NewLine > 0 {
					current.NewStart = first.NewLine
				} else {
					current.NewStart = line.NewLine
				}
			} else {
				current.OldStart = line.OldLine
				current.NewStart = line.NewLine
			}
		}

		if current != nil {
			current.Lines = append(current.Lines, line)

			if line.OldLine > 0 {
				current.OldCount++
			}
			if line.NewLine > 0 {
				current.NewCount++
			}

			// Close the hunk once only context follows within the window.
			contextAfter := 0
			for j := i + 1; j < len(lines) && j < i+1+contextLines; j++ {
				if lines[j].Type != LineContext {
					contextAfter = -1
					break
				}
				contextAfter++
			}

			if contextAfter >= 0 && (i == len(lines)-1 || contextAfter < contextLines) {
				for j := i + 1; j <= i+contextAfter && j < len(lines); j++ {
					current.Lines = append(current.Lines, lines[j])
					if lines[j].OldLine > 0 {
						current.OldCount++
					}
					if lines[j].NewLine > 0 {
						current.NewCount++
					}
				}
				hunks = append(hunks, *current)
				current = nil
			}
		}
	}

	if current != nil {
		hunks = append(hunks, *current)
	}

	return hunks
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatUnified renders the diff in unified format under the given label.
func FormatUnified(label string, res *Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("--- a/%s\n", label))
	sb.WriteString(fmt.Sprintf("+++ b/%s\n", label))

	for _, hunk := range res.Hunks {
		sb.WriteString(fmt.Sprintf("@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldCount,
			hunk.NewStart, hunk.NewCount))

		for _, line := range hunk.Lines {
			sb.WriteString(line.Type.Prefix())
			sb.WriteString(line.Content)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Summary returns a short human-readable summary like "+3 -1".
func (r *Result) Summary() string {
	if !r.HasChanges() {
		return "no changes"
	}

	var parts []string
	if r.Stats.Additions > 0 {
		parts = append(parts, fmt.Sprintf("+%d", r.Stats.Additions))
	}
	if r.Stats.Deletions > 0 {
		parts = append(parts, fmt.Sprintf("-%d", r.Stats.Deletions))
	}
	return strings.Join(parts, " ")
}
