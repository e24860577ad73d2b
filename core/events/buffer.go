package events

import (
	"sync"

	"accordchain/core/types"
)

// Payload is implemented by events that carry a canonical types.Event.
type Payload interface {
	Event
	Event() *types.Event
}

// Buffer collects emitted events until Flush. The node uses it to hold events
// raised inside a transaction and publish them only after commit.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Payloads returns the canonical payload of every buffered event that carries
// one, in emission order.
func (b *Buffer) Payloads() []types.Event {
	out := make([]types.Event, 0)
	for _, evt := range b.Events() {
		p, ok := evt.(Payload)
		if !ok || p.Event() == nil {
			continue
		}
		out = append(out, *p.Event())
	}
	return out
}

// Flush forwards every buffered event to dst and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Reset drops buffered events without forwarding them.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Fanout forwards every event to each wrapped emitter.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, dst := range f {
		if dst != nil {
			dst.Emit(evt)
		}
	}
}
