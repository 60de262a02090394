// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morganforge/inkwell/internal/cloud"
	"github.com/morganforge/inkwell/internal/ollama"
)

// collect drains events until a Final event for the given session
// arrives or the timeout hits.
func collect(t *testing.T, c *Coordinator, sessionID uint64, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-c.Events():
			events = append(events, ev)
			if ev.SessionID == sessionID && ev.Final {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for final event of session %d (got %d events)", sessionID, len(events))
		}
	}
}

func TestSubmitStreamsOrderedFragments(t *testing.T) {
	c := NewCoordinator(Timeouts{})
	defer c.Close()

	id := c.Submit(ChannelChat, func(ctx context.Context, emit func(string)) error {
		for _, s := range []string{"a", "b", "c"} {
			emit(s)
		}
		return nil
	})

	events := collect(t, c, id, time.Second)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 3 fragments + final", len(events))
	}
	for i, ev := range events {
		if ev.Seq != i+1 {
			t.Errorf("event %d Seq = %d, want strictly increasing from 1", i, ev.Seq)
		}
		if ev.SessionID != id {
			t.Errorf("event %d SessionID = %d, want %d", i, ev.SessionID, id)
		}
	}
	if got := events[0].Text + events[1].Text + events[2].Text; got != "abc" {
		t.Errorf("fragment order = %q, want abc", got)
	}
	if !events[3].Final || events[3].Err != nil {
		t.Errorf("last event = %+v, want clean final", events[3])
	}
}

func TestSupersessionDropsOldFragments(t *testing.T) {
	c := NewCoordinator(Timeouts{})
	defer c.Close()

	firstStarted := make(chan struct{})
	release := make(chan struct{})

	c.Submit(ChannelCompletion, func(ctx context.Context, emit func(string)) error {
		emit("old-1")
		close(firstStarted)
		<-release
		// Superseded by now; these must never reach the client.
		emit("old-2")
		emit("old-3")
		return ctx.Err()
	})

	<-firstStarted
	// Drain the first session's fragment before superseding.
	ev := <-c.Events()
	if ev.Text != "old-1" {
		t.Fatalf("first event = %q, want old-1", ev.Text)
	}

	second := c.Submit(ChannelCompletion, func(ctx context.Context, emit func(string)) error {
		emit("new-1")
		return nil
	})
	close(release)

	events := collect(t, c, second, time.Second)
	for _, ev := range events {
		if ev.SessionID != second {
			t.Errorf("event from superseded session delivered after new session started: %+v", ev)
		}
	}
}

func TestMonotonicSessionIDs(t *testing.T) {
	c := NewCoordinator(Timeouts{})
	defer c.Close()

	noop := func(ctx context.Context, emit func(string)) error { return ctx.Err() }

	a := c.Submit(ChannelChat, noop)
	b := c.Submit(ChannelCompletion, noop)
	d := c.Submit(ChannelChat, noop)
	if !(a < b && b < d) {
		t.Errorf("ids not monotonic: %d %d %d", a, b, d)
	}
}

func TestChannelTimeoutReportsTimeoutOutcome(t *testing.T) {
	c := NewCoordinator(Timeouts{Completion: 30 * time.Millisecond})
	defer c.Close()

	id := c.Submit(ChannelCompletion, func(ctx context.Context, emit func(string)) error {
		<-ctx.Done()
		return ctx.Err()
	})

	events := collect(t, c, id, time.Second)
	last := events[len(events)-1]
	if last.Err == nil || last.Err.Kind != KindTimeout {
		t.Fatalf("final event error = %+v, want timeout kind", last.Err)
	}
}

func TestCancelSilencesSession(t *testing.T) {
	c := NewCoordinator(Timeouts{})
	defer c.Close()

	started := make(chan struct{})
	c.Submit(ChannelInlineEdit, func(ctx context.Context, emit func(string)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	c.Cancel(ChannelInlineEdit)
	c.Cancel(ChannelInlineEdit) // idempotent

	if got := c.Active(ChannelInlineEdit); got != 0 {
		t.Errorf("Active = %d after cancel, want 0", got)
	}

	select {
	case ev := <-c.Events():
		t.Fatalf("cancelled session delivered event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelsFailIndependently(t *testing.T) {
	c := NewCoordinator(Timeouts{})
	defer c.Close()

	failing := c.Submit(ChannelChat, func(ctx context.Context, emit func(string)) error {
		return ollama.ErrNotRunning
	})
	fine := c.Submit(ChannelCompletion, func(ctx context.Context, emit func(string)) error {
		emit("ok")
		return nil
	})

	var chatErr *SessionError
	var completionText string
	deadline := time.After(time.Second)
	remaining := 2
	for remaining > 0 {
		select {
		case ev := <-c.Events():
			if ev.Final {
				remaining--
			}
			if ev.SessionID == failing && ev.Err != nil {
				chatErr = ev.Err
			}
			if ev.SessionID == fine && ev.Text != "" {
				completionText += ev.Text
			}
		case <-deadline:
			t.Fatal("timed out waiting for both sessions")
		}
	}

	if chatErr == nil || chatErr.Kind != KindConnection {
		t.Errorf("chat error = %+v, want connection kind", chatErr)
	}
	if completionText != "ok" {
		t.Errorf("completion text = %q, want ok", completionText)
	}
}

func TestProviderErrorAfterFragments(t *testing.T) {
	c := NewCoordinator(Timeouts{})
	defer c.Close()

	id := c.Submit(ChannelChat, func(ctx context.Context, emit func(string)) error {
		emit("partial")
		return errors.New("stream broke")
	})

	events := collect(t, c, id, time.Second)
	last := events[len(events)-1]
	if last.Err == nil {
		t.Fatal("final event carries no error")
	}
	if events[0].Text != "partial" {
		t.Errorf("partial fragment lost: %+v", events[0])
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"cancelled", context.Canceled, KindCancelled},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"ollama not running", ollama.ErrNotRunning, KindConnection},
		{"ollama timeout", ollama.ErrTimeout, KindTimeout},
		{"ollama model missing", ollama.ErrModelNotFound, KindModelNotFound},
		{"cloud not configured", cloud.ErrNotConfigured, KindAuth},
		{"cloud rate limited", cloud.ErrRateLimited, KindRateLimited},
		{"cloud auth", cloud.ErrAuthFailed, KindAuth},
		{"unknown", errors.New("weird"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.want {
				t.Errorf("Classify(%v).Kind = %v, want %v", tt.err, got.Kind, tt.want)
			}
		})
	}
	if Classify(nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}

func TestSubmitNeverBlocksBehindUndrainedEvents(t *testing.T) {
	c := NewCoordinator(Timeouts{})
	defer c.Close()

	// A worker far outrunning the consumer: nothing is drained while it
	// emits well past any internal buffering.
	emitted := make(chan struct{})
	id := c.Submit(ChannelChat, func(ctx context.Context, emit func(string)) error {
		for i := 0; i < 5000; i++ {
			emit("x")
		}
		close(emitted)
		return nil
	})

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stalled emitting: delivery blocked it")
	}

	// Submit and Cancel on other channels must return immediately even
	// though nothing has been drained.
	done := make(chan struct{})
	go func() {
		c.Submit(ChannelCompletion, func(ctx context.Context, emit func(string)) error {
			return nil
		})
		c.Cancel(ChannelInlineEdit)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Submit/Cancel blocked behind the undrained event backlog")
	}

	// Backpressure may shed old fragments, but the final event survives.
	events := collect(t, c, id, 2*time.Second)
	final := events[len(events)-1]
	if !final.Final || final.SessionID != id {
		t.Errorf("last drained event = %+v, want the session's final", final)
	}
}

func TestCloseCancelsEverything(t *testing.T) {
	c := NewCoordinator(Timeouts{})

	started := make(chan struct{})
	c.Submit(ChannelChat, func(ctx context.Context, emit func(string)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	c.Close()
	c.Close() // idempotent

	if _, ok := <-c.Events(); ok {
		t.Error("events channel not closed")
	}
}
