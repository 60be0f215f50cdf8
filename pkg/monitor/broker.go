package monitor

import "sync"

// Broker fans messages out to connected event-stream clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan Message]struct{}
}

// NewBroker creates a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[chan Message]struct{})}
}

// Subscribe registers a client.
func (b *Broker) Subscribe() chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, 32)
	b.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish sends msg to every subscriber. Slow clients miss messages
// rather than stall the caller.
func (b *Broker) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// Channel full, skip
		}
	}
}

// Count returns the number of connected clients.
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close disconnects every client.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
