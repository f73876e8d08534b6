package events

import (
	"sync"

	"grantchain/core/types"
)

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout forwards every event to each wrapped emitter in order. Nil entries
// are skipped.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter == nil {
			continue
		}
		emitter.Emit(evt)
	}
}

// Recorder keeps every emitted event in memory. Tests use it to assert on the
// exact events produced by a transition.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the rendered payloads of all recorded events of the given type.
func (r *Recorder) OfType(eventType string) []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Event
	for _, evt := range r.events {
		if evt.EventType() == eventType {
			out = append(out, evt.Event())
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type stamped struct {
	inner  Event
	height uint64
}

func (s stamped) EventType() string { return s.inner.EventType() }

func (s stamped) Event() *types.Event {
	evt := s.inner.Event()
	if evt == nil {
		return nil
	}
	evt.Height = s.height
	return evt
}

// AtHeight wraps an event so its rendered payload carries the block height it
// was emitted at.
func AtHeight(evt Event, height uint64) Event {
	if evt == nil {
		return nil
	}
	return stamped{inner: evt, height: height}
}

// Buffer holds events until Flush hands them to a downstream emitter. The
// runtime uses it to publish only the events of transitions that commit.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Len reports how many events are pending.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Discard drops pending events.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Flush forwards pending events to out in emission order and empties the
// buffer. A nil out discards them.
func (b *Buffer) Flush(out Emitter) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if out == nil {
		return
	}
	for _, evt := range pending {
		out.Emit(evt)
	}
}
