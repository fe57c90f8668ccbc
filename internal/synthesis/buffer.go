package synthesis

import (
	"market-pulse-alerts/internal/alert"
)

// Buffer accumulates admitted alerts between synthesis passes. Bounded FIFO:
// inserting past capacity evicts the oldest entry. Not safe for concurrent
// use; mutated only by the orchestration loop.
type Buffer struct {
	cap    int
	alerts []alert.Alert
}

// NewBuffer constructs a bounded buffer; capacity defaults to 20.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 20
	}
	return &Buffer{cap: capacity, alerts: make([]alert.Alert, 0, capacity)}
}

// Add appends an alert, evicting the oldest entry on overflow.
func (b *Buffer) Add(a alert.Alert) {
	if len(b.alerts) >= b.cap {
		b.alerts = b.alerts[1:]
	}
	b.alerts = append(b.alerts, a)
}

// Drain returns the buffered alerts in insertion order and clears the buffer.
func (b *Buffer) Drain() []alert.Alert {
	out := b.alerts
	b.alerts = make([]alert.Alert, 0, b.cap)
	return out
}

// Peek returns the buffered alerts in insertion order without clearing.
func (b *Buffer) Peek() []alert.Alert {
	return b.alerts
}

// Size reports how many alerts are buffered.
func (b *Buffer) Size() int {
	return len(b.alerts)
}
