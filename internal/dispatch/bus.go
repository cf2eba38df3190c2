package dispatch

import (
	"context"
	"sync"
)

// #region bus

// Bus is the in-process dispatcher: a buffered channel with per-subscriber
// callbacks, used when no broker is configured and in tests.
type Bus struct {
	ch   chan Envelope
	subs []func(Envelope)
	mu   sync.RWMutex
}

// NewBus creates a bus with the given buffer depth.
func NewBus(depth int) *Bus {
	if depth <= 0 {
		depth = 100
	}
	return &Bus{ch: make(chan Envelope, depth)}
}

// Dispatch enqueues the envelope. A full buffer returns ctx.Err-style
// blocking only until the context expires.
func (b *Bus) Dispatch(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a callback for delivered envelopes.
func (b *Bus) Subscribe(fn func(Envelope)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Run delivers envelopes to subscribers until the context is cancelled.
// Should be run as a goroutine.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-b.ch:
			b.mu.RLock()
			subs := b.subs
			b.mu.RUnlock()
			for _, fn := range subs {
				fn(env)
			}
		}
	}
}

// Pending returns the number of undelivered envelopes.
func (b *Bus) Pending() int {
	return len(b.ch)
}

// #endregion bus
