// Package pubsub provides the in-process event broker. Delivery is
// synchronous within Publish; consumers that need durability reconcile via
// the event table.
package pubsub

import "sync"

// DefaultBuffer is the per-subscriber channel depth. A subscriber that falls
// this far behind starts losing messages rather than blocking publishers.
const DefaultBuffer = 64

// Message is a single published payload.
type Message map[string]any

// Broker is an in-memory fan-out broker. The zero value is not usable; call
// NewBroker.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Message
}

// NewBroker constructs an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan Message)}
}

// Publish delivers the message to every subscriber of the channel. Slow
// subscribers are skipped once their buffer is full.
func (b *Broker) Publish(channel string, msg map[string]any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a consumer on the channel and returns the delivery
// channel plus a cancel func that must be called to release it.
func (b *Broker) Subscribe(channel string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Message, DefaultBuffer)
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]chan Message)
	}
	b.subs[channel][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if entry, ok := b.subs[channel][id]; ok {
			delete(b.subs[channel], id)
			close(entry)
		}
	}
	return ch, cancel
}
