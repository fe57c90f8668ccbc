package pubsub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Subscription is one registered listener on a channel. Messages arrive on C;
// a subscriber that stops draining is deregistered rather than blocking the
// publisher.
type Subscription struct {
	ID      string
	Channel string
	C       chan []byte
}

// Hub broadcasts dispatched messages to in-process subscribers keyed by
// channel name (per-symbol channels plus the unified channel). Publishing to
// a channel nobody listens on is a no-op. Safe for concurrent use: WebSocket
// handlers subscribe from their own goroutines.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Subscription
	logger zerolog.Logger
}

const subscriberBuffer = 16

// NewHub constructs an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[string]*Subscription),
		logger: logger.With().Str("component", "pubsub").Logger(),
	}
}

// Subscribe registers a listener on the given channel.
func (h *Hub) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		ID:      uuid.NewString(),
		Channel: channel,
		C:       make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[string]*Subscription)
	}
	h.subs[channel][sub.ID] = sub
	return sub
}

// Unsubscribe deregisters a listener and closes its channel. Idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	listeners, ok := h.subs[sub.Channel]
	if !ok {
		return
	}
	if _, ok := listeners[sub.ID]; !ok {
		return
	}
	delete(listeners, sub.ID)
	if len(listeners) == 0 {
		delete(h.subs, sub.Channel)
	}
	close(sub.C)
}

// Publish broadcasts payload to every listener on the channel, fire and
// forget. A listener with a full buffer is dropped and deregistered; one bad
// subscriber never affects the others.
func (h *Hub) Publish(channel string, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	listeners := h.subs[channel]
	delivered := 0
	for id, sub := range listeners {
		select {
		case sub.C <- payload:
			delivered++
		default:
			delete(listeners, id)
			close(sub.C)
			h.logger.Warn().Str("channel", channel).Str("subscriber", id).Msg("slow subscriber dropped")
		}
	}
	if listeners != nil && len(listeners) == 0 {
		delete(h.subs, channel)
	}
	return delivered
}

// Subscribers reports how many listeners a channel currently has.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
