// Package signal provides the cancellation channel: a narrow-casted,
// in-memory signal keyed by a correlation id that interrupts a specific
// in-flight workflow run. Requests are ephemeral: delivered at most once
// to current subscribers and never persisted.
package signal

import (
	"context"
	"sync"
	"time"
)

// Cancellation asks for the run holding CorrelationKey to stop.
type Cancellation struct {
	CorrelationKey string
	RequestedAt    time.Time
}

// Handler receives published cancellation requests.
type Handler func(ctx context.Context, c Cancellation)

// Bus is an in-memory publish/subscribe channel for cancellations.
// It is safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]Handler
	next int
}

// NewBus creates an empty cancellation bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers a handler for every subsequent publish and returns
// an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	token := b.next
	b.next++
	b.subs[token] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, token)
		b.mu.Unlock()
	}
}

// Publish delivers a cancellation for the given correlation key to every
// current subscriber, synchronously. A publish with no subscribers is
// dropped; cancellations do not queue.
func (b *Bus) Publish(ctx context.Context, correlationKey string) {
	c := Cancellation{
		CorrelationKey: correlationKey,
		RequestedAt:    time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, c)
	}
}
