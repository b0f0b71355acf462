package engine

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Notifier fans engine notifications out to subscribers (websocket
// sessions). Delivery is best effort: a subscriber that stops draining
// its channel loses messages rather than stalling the read pump.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]chan json.RawMessage
}

// NewNotifier returns an empty registry.
func NewNotifier() *Notifier {
	return &Notifier{subs: map[string]chan json.RawMessage{}}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel func that must be called when the subscriber goes away.
func (n *Notifier) Subscribe() (<-chan json.RawMessage, func()) {
	id := uuid.NewString()
	ch := make(chan json.RawMessage, 16)
	n.mu.Lock()
	n.subs[id] = ch
	n.mu.Unlock()
	return ch, func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Publish delivers msg to every subscriber without blocking.
func (n *Notifier) Publish(msg json.RawMessage) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Count returns the number of active subscribers.
func (n *Notifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}
