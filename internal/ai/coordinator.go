// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ai coordinates streaming model requests across three
// independent channels: chat, completion, and inline edit. Each channel
// holds at most one active session; submitting a new request cancels
// the previous one, and fragments from a superseded session are dropped
// before they reach client code.
package ai

import (
	"context"
	"log"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// CHANNELS
// =============================================================================

// Channel identifies which client feature owns a session.
type Channel int

const (
	// ChannelChat is the conversational panel.
	ChannelChat Channel = iota
	// ChannelCompletion is ghost-text completion.
	ChannelCompletion
	// ChannelInlineEdit is selection-scoped editing.
	ChannelInlineEdit

	numChannels
)

// String returns the channel name.
func (ch Channel) String() string {
	switch ch {
	case ChannelChat:
		return "chat"
	case ChannelCompletion:
		return "completion"
	case ChannelInlineEdit:
		return "inline-edit"
	default:
		return "unknown"
	}
}

// Timeouts holds the per-channel time budgets. Zero values disable the
// watchdog for that channel.
type Timeouts struct {
	Chat       time.Duration
	Completion time.Duration
	InlineEdit time.Duration
}

// forChannel returns the budget for a channel.
func (t Timeouts) forChannel(ch Channel) time.Duration {
	switch ch {
	case ChannelChat:
		return t.Chat
	case ChannelCompletion:
		return t.Completion
	case ChannelInlineEdit:
		return t.InlineEdit
	default:
		return 0
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is one ordered delivery from a session to its client. Text
// events carry a delta with increasing Seq; the terminal event has
// Final set and, on failure, a non-nil Err. Superseded sessions emit
// nothing after cancellation is observed.
type Event struct {
	SessionID uint64
	Channel   Channel
	Seq       int
	Text      string
	Final     bool
	Err       *SessionError
}

// StreamFunc runs one session's provider call. It must emit each text
// delta in order via emit and return when the stream ends. A returned
// error terminates the session with a classified outcome; ctx carries
// both supersession cancellation and the channel's timeout.
type StreamFunc func(ctx context.Context, emit func(delta string)) error

// =============================================================================
// COORDINATOR
// =============================================================================

// session is one slot entry. The id doubles as the supersession check:
// a worker only delivers while its id is still the slot's current id.
type session struct {
	id      uint64
	channel Channel
	cancel  context.CancelFunc
	started time.Time
}

// maxPendingEvents caps the delivery queue when the UI stalls. Past it
// the oldest fragment is discarded; Final events always survive so no
// channel is left looking in-flight.
const maxPendingEvents = 1024

// Coordinator owns the three channel slots. All slot mutation happens
// under one mutex. Workers append events to a queue under that same
// mutex, so enqueueing never blocks; a pump goroutine forwards the
// queue to the channel the UI loop drains.
type Coordinator struct {
	mu      sync.Mutex
	cond    *sync.Cond
	nextID  uint64
	slots   [numChannels]*session
	queue   []Event
	events  chan Event
	timeout Timeouts
	closed  bool
}

// NewCoordinator creates a coordinator with the given channel budgets.
func NewCoordinator(timeouts Timeouts) *Coordinator {
	c := &Coordinator{
		events:  make(chan Event, 64),
		timeout: timeouts,
	}
	c.cond = sync.NewCond(&c.mu)
	go c.pump()
	return c
}

// Events returns the delivery channel. The UI loop owns draining it;
// per-session order is preserved because each session has one worker.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Submit cancels any active session on the channel, starts a new one,
// and returns its id without blocking. The stream runs on its own
// goroutine; fragments arrive on Events in order.
func (c *Coordinator) Submit(channel Channel, run StreamFunc) uint64 {
	c.mu.Lock()
	if prev := c.slots[channel]; prev != nil {
		prev.cancel()
	}
	c.nextID++
	id := c.nextID

	ctx := context.Background()
	var cancel context.CancelFunc
	if budget := c.timeout.forChannel(channel); budget > 0 {
		ctx, cancel = context.WithTimeout(ctx, budget)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	s := &session{id: id, channel: channel, cancel: cancel, started: time.Now()}
	c.slots[channel] = s
	c.mu.Unlock()

	go c.runSession(ctx, s, run)
	return id
}

// Cancel marks the channel's current session cancelled. Idempotent;
// fragments already in flight are dropped at delivery time.
func (c *Coordinator) Cancel(channel Channel) {
	c.mu.Lock()
	s := c.slots[channel]
	if s != nil {
		s.cancel()
		c.slots[channel] = nil
	}
	c.mu.Unlock()
}

// Active returns the current session id for a channel, or 0.
func (c *Coordinator) Active(channel Channel) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.slots[channel]; s != nil {
		return s.id
	}
	return 0
}

// Close cancels every active session. The pump drains what is already
// queued and then closes the event channel. Call only after all clients
// have stopped submitting.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for i := range c.slots {
		if s := c.slots[i]; s != nil {
			s.cancel()
			c.slots[i] = nil
		}
	}
	c.cond.Signal()
	c.mu.Unlock()
}

// runSession drives one provider stream on a worker goroutine.
func (c *Coordinator) runSession(ctx context.Context, s *session, run StreamFunc) {
	defer s.cancel()

	seq := 0
	err := run(ctx, func(delta string) {
		seq++
		c.deliver(s, Event{
			SessionID: s.id,
			Channel:   s.channel,
			Seq:       seq,
			Text:      delta,
		})
	})

	if err != nil {
		// Deadline expiry surfaces from the provider as a context error.
		outcome := Classify(err)
		if outcome.Kind == KindCancelled {
			// Supersession or dismiss: terminates silently.
			return
		}
		log.Printf("AI: %s session %d failed: %v", s.channel, s.id, outcome)
		seq++
		c.deliver(s, Event{
			SessionID: s.id,
			Channel:   s.channel,
			Seq:       seq,
			Final:     true,
			Err:       outcome,
		})
		c.clearSlot(s)
		return
	}

	seq++
	c.deliver(s, Event{
		SessionID: s.id,
		Channel:   s.channel,
		Seq:       seq,
		Final:     true,
	})
	c.clearSlot(s)
}

// deliver enqueues an event unless the session has been superseded. The
// staleness check and the append happen under the slot mutex so a
// concurrent Submit cannot interleave an old fragment after a new
// session's first one. Appending never blocks: when the queue is full
// the oldest non-final event is dropped instead.
func (c *Coordinator) deliver(s *session, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	current := c.slots[s.channel]
	if current == nil || current.id != s.id {
		return
	}
	if len(c.queue) >= maxPendingEvents {
		for i := range c.queue {
			if !c.queue[i].Final {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				break
			}
		}
	}
	c.queue = append(c.queue, ev)
	c.cond.Signal()
}

// pump moves queued events onto the delivery channel. It is the only
// sender, so a stalled consumer backs up here and in the queue, never
// inside a worker or Submit.
func (c *Coordinator) pump() {
	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			close(c.events)
			return
		}
		ev := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.events <- ev
	}
}

// clearSlot removes a terminal session from its slot if still current.
func (c *Coordinator) clearSlot(s *session) {
	c.mu.Lock()
	if current := c.slots[s.channel]; current != nil && current.id == s.id {
		c.slots[s.channel] = nil
	}
	c.mu.Unlock()
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// EventMsg wraps a coordinator event for the Bubble Tea update loop.
type EventMsg struct {
	Event
}

// WaitForEvent returns a command that blocks for the next coordinator
// event. The update loop re-issues it after handling each EventMsg so
// delivery stays on the UI-owned execution context.
func (c *Coordinator) WaitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-c.events
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}
