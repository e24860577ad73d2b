package events

import (
	"strings"
	"sync"

	"accordchain/core/types"
)

const defaultSubscriberBuffer = 64

// Broker fans committed event payloads out to live subscribers. Delivery is
// best effort: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu      sync.Mutex
	subs    map[uint64]*subscription
	next    uint64
	buffer  int
	dropped uint64
}

type subscription struct {
	prefix string
	ch     chan types.Event
}

// NewBroker returns a broker whose subscribers buffer up to buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broker{subs: make(map[uint64]*subscription), buffer: buffer}
}

// Subscribe registers a subscriber for events whose type starts with prefix.
// An empty prefix matches everything. The returned cancel func closes the
// channel.
func (b *Broker) Subscribe(prefix string) (<-chan types.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := &subscription{prefix: strings.TrimSpace(prefix), ch: make(chan types.Event, b.buffer)}
	b.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Emit implements the Emitter interface.
func (b *Broker) Emit(evt Event) {
	p, ok := evt.(Payload)
	if !ok || p.Event() == nil {
		return
	}
	payload := *p.Event()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(payload.Type, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			b.dropped++
		}
	}
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broker) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
