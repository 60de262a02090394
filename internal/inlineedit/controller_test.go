// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inlineedit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/morganforge/inkwell/internal/ai"
	"github.com/morganforge/inkwell/internal/cloud"
	"github.com/morganforge/inkwell/internal/editor"
	"github.com/morganforge/inkwell/internal/ollama"
	"github.com/morganforge/inkwell/internal/router"
)

type fakeLocal struct {
	calls    int
	model    string
	messages []ollama.Message
	reply    []string
	err      error
}

func (f *fakeLocal) ChatStream(ctx context.Context, model string, messages []ollama.Message, callback ollama.StreamCallback) error {
	f.calls++
	f.model = model
	f.messages = messages
	if f.err != nil {
		return f.err
	}
	for _, part := range f.reply {
		callback(ollama.StreamChunk{Content: part})
	}
	return nil
}

type fakeCloud struct {
	calls  int
	system string
	reply  string
}

func (f *fakeCloud) ChatStream(ctx context.Context, model string, system string, messages []cloud.Message, callback cloud.StreamCallback) error {
	f.calls++
	f.system = system
	callback(cloud.StreamChunk{Text: f.reply})
	callback(cloud.StreamChunk{Done: true})
	return nil
}

func editRouter() *router.Router {
	return router.New(router.NewTable(router.TableConfig{
		InlineEditModel:      "qwen2.5-coder:7b",
		LocalChatModel:       "qwen2.5-coder:7b",
		LocalCompletionModel: "deepseek-coder:1.3b",
	}))
}

// drive pumps coordinator events into the controller until it leaves
// the generating state or the timeout hits.
func drive(t *testing.T, c *Controller, coord *ai.Coordinator) {
	t.Helper()
	deadline := time.After(time.Second)
	for c.State() == StateGenerating {
		select {
		case ev := <-coord.Events():
			c.HandleEvent(ev)
		case <-deadline:
			t.Fatal("controller stuck in generating")
		}
	}
}

func TestApplyReplacesSelectionExactly(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("before def f(): pass after")
	start := strings.Index(buf.Text(), "def")
	buf.Select(editor.Range{Start: start, End: start + len("def f(): pass")})

	local := &fakeLocal{reply: []string{"def f():\n", `    """Docstring."""`}}
	c := NewController(coord, editRouter(), local, &fakeCloud{}, buf, "coding")

	if !c.Begin() {
		t.Fatal("Begin refused a valid selection")
	}
	c.SubmitInstruction("add a docstring", "")
	drive(t, c, coord)

	proposed, ok := c.Proposed()
	if !ok {
		t.Fatalf("state = %v, want previewing", c.State())
	}
	res, _ := c.Preview()
	if res == nil || !res.HasChanges() {
		t.Error("preview diff missing or empty")
	}

	if err := c.Apply(); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "before " + proposed + " after"
	if got := buf.Text(); got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
	if c.State() != StateIdle {
		t.Errorf("state after apply = %v", c.State())
	}
}

func TestRejectLeavesOriginalUntouched(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("def f(): pass")
	buf.Select(editor.Range{Start: 0, End: len(buf.Text())})
	originalText := buf.Text()
	originalRev := buf.Revision()

	local := &fakeLocal{reply: []string{"def f():\n    return 1"}}
	c := NewController(coord, editRouter(), local, &fakeCloud{}, buf, "coding")

	c.Begin()
	c.SubmitInstruction("make it return 1", "")
	drive(t, c, coord)

	c.Reject()
	if buf.Text() != originalText {
		t.Errorf("reject mutated text: %q", buf.Text())
	}
	if buf.Revision() != originalRev {
		t.Error("reject bumped document revision")
	}
	if c.State() != StateIdle {
		t.Errorf("state after reject = %v", c.State())
	}
}

func TestMinimumSelectionGuard(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("a   \t\n")
	c := NewController(coord, editRouter(), &fakeLocal{}, &fakeCloud{}, buf, "coding")

	if c.Begin() {
		t.Error("Begin accepted with no selection")
	}

	buf.Select(editor.Range{Start: 0, End: len(buf.Text())})
	if c.Begin() {
		t.Error("Begin accepted a selection with fewer than 2 non-whitespace chars")
	}
}

func TestFencesStrippedFromProposal(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("x = 1")
	buf.Select(editor.Range{Start: 0, End: 5})

	local := &fakeLocal{reply: []string{"```python\nx = 2\n```"}}
	c := NewController(coord, editRouter(), local, &fakeCloud{}, buf, "coding")

	c.Begin()
	c.SubmitInstruction("bump it", "")
	drive(t, c, coord)

	proposed, ok := c.Proposed()
	if !ok {
		t.Fatalf("state = %v", c.State())
	}
	if proposed != "x = 2" {
		t.Errorf("proposed = %q, want fences stripped", proposed)
	}
}

func TestProviderErrorShowsMessage(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("some code")
	buf.Select(editor.Range{Start: 0, End: 9})

	local := &fakeLocal{err: ollama.ErrNotRunning}
	c := NewController(coord, editRouter(), local, &fakeCloud{}, buf, "coding")

	c.Begin()
	c.SubmitInstruction("edit", "")
	drive(t, c, coord)

	msg, ok := c.ErrorMessage()
	if !ok || msg == "" {
		t.Fatalf("state = %v, want failed with message", c.State())
	}

	c.Acknowledge()
	if c.State() != StateIdle {
		t.Errorf("state after acknowledge = %v", c.State())
	}
}

func TestEmptyResponseFails(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("some code")
	buf.Select(editor.Range{Start: 0, End: 9})

	local := &fakeLocal{reply: []string{"```\n```"}}
	c := NewController(coord, editRouter(), local, &fakeCloud{}, buf, "coding")

	c.Begin()
	c.SubmitInstruction("edit", "")
	drive(t, c, coord)

	if _, ok := c.ErrorMessage(); !ok {
		t.Errorf("state = %v, want failed on empty proposal", c.State())
	}
}

func TestSelectionLossClosesEdit(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("hello world")
	buf.Select(editor.Range{Start: 0, End: 5})

	c := NewController(coord, editRouter(), &fakeLocal{}, &fakeCloud{}, buf, "coding")
	c.Begin()
	if c.State() != StateCapturing {
		t.Fatalf("state = %v", c.State())
	}

	// Clicking elsewhere drops the selection.
	buf.SetCursor(8)
	c.OnSelectionChanged()

	if c.State() != StateIdle {
		t.Errorf("state after selection loss = %v, want idle", c.State())
	}
}

func TestApplyRefusedAfterDocumentEdit(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("target text here")
	buf.Select(editor.Range{Start: 0, End: 6})

	local := &fakeLocal{reply: []string{"TARGET"}}
	c := NewController(coord, editRouter(), local, &fakeCloud{}, buf, "coding")

	c.Begin()
	c.SubmitInstruction("uppercase", "")
	drive(t, c, coord)

	// An edit lands between preview and apply.
	if err := buf.Insert(0, "x"); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply(); err == nil {
		t.Error("Apply succeeded against a changed document")
	}
	if !strings.HasPrefix(buf.Text(), "xtarget") {
		t.Errorf("document corrupted: %q", buf.Text())
	}
}

func TestWritingModePrompt(t *testing.T) {
	system, user := BuildPrompt("shorten it", "long paragraph", "writing")
	if !strings.Contains(system, "text editor") {
		t.Errorf("system = %q, want writing framing", system)
	}
	if !strings.Contains(user, "Text:\nlong paragraph") || !strings.Contains(user, "Edited text:") {
		t.Errorf("user = %q", user)
	}

	system, user = BuildPrompt("refactor", "code here", "coding")
	if !strings.Contains(system, "code editor") {
		t.Errorf("system = %q, want coding framing", system)
	}
	if !strings.Contains(user, "Edited code:") {
		t.Errorf("user = %q", user)
	}
}

func TestCloudRouteUsesCloudStreamer(t *testing.T) {
	coord := ai.NewCoordinator(ai.Timeouts{})
	defer coord.Close()

	buf := editor.NewBuffer("fix me please")
	buf.Select(editor.Range{Start: 0, End: 6})

	cloudClient := &fakeCloud{reply: "fixed!"}
	c := NewController(coord, editRouter(), &fakeLocal{}, cloudClient, buf, "coding")

	c.Begin()
	c.SubmitInstruction("fix", "claude-3-5-haiku-latest")
	drive(t, c, coord)

	if cloudClient.calls != 1 {
		t.Fatalf("cloud calls = %d, want 1", cloudClient.calls)
	}
	if proposed, _ := c.Proposed(); proposed != "fixed!" {
		t.Errorf("proposed = %q", proposed)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"```go\ncode\n```", "code"},
		{"```\ncode\n```", "code"},
		{"code", "code"},
		{"```python\na\nb\n```  ", "a\nb"},
		{"  plain\n", "plain"},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
