package engine

import (
	"context"
	"sync"
)

// Gate serializes access to the engine session: exactly one call may be
// in flight between write and matching response. Waiters are granted
// access in arrival order; a session-oriented engine used interactively
// cannot tolerate starvation.
type Gate struct {
	mu     sync.Mutex
	locked bool
	queue  []chan struct{}
}

// NewGate returns an unlocked gate.
func NewGate() *Gate {
	return &Gate{}
}

// Acquire blocks until the caller holds the gate or ctx is done. On
// success the caller must Release on every exit path.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.locked {
		g.locked = true
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.queue = append(g.queue, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, c := range g.queue {
			if c == ch {
				g.queue = append(g.queue[:i], g.queue[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The grant raced the cancellation; hand it to the next waiter.
		g.Release()
		return ctx.Err()
	}
}

// Release hands the gate to the oldest waiter, or unlocks it.
func (g *Gate) Release() {
	g.mu.Lock()
	if len(g.queue) > 0 {
		ch := g.queue[0]
		g.queue = g.queue[1:]
		g.mu.Unlock()
		close(ch)
		return
	}
	g.locked = false
	g.mu.Unlock()
}
