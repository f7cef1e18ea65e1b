// Package events is the session's outbound event stream: a channel-based
// pub-sub bus with per-subscriber bounded queues. Producers never block on a
// slow or absent subscriber; when a subscriber's queue is full the oldest
// queued event is dropped in favor of the new one (newest state wins for
// display-style consumers).
package events

import (
	"sync"
)

// Bus is a topic-based pub-sub event bus. Supports per-topic subscriptions
// and SubscribeAll for cross-topic consumption.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	allSubs []chan Event
	closed  bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[string][]chan Event),
		allSubs: make([]chan Event, 0),
	}
}

// Subscribe creates a subscription to a specific topic. bufSize is the bound
// on the subscriber's queue (defaults to 256 if <= 0).
func (b *Bus) Subscribe(topic string, bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll creates a subscription to every topic.
func (b *Bus) SubscribeAll(bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

// Publish sends an event to all subscribers of the given topic and to all
// SubscribeAll channels. Never blocks: a full subscriber queue drops its
// oldest event to make room.
func (b *Bus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		send(ch, event)
	}
	for _, ch := range b.allSubs {
		send(ch, event)
	}
}

// send enqueues without blocking, evicting the oldest queued event when the
// channel is full. The eviction read races benignly with the consumer: if
// the consumer drains the channel first, the second send attempt succeeds.
func send(ch chan Event, event Event) {
	select {
	case ch <- event:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- event:
	default:
	}
}

// Close closes the bus and all subscriber channels. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.allSubs {
		close(ch)
	}
}
