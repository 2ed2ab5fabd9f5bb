package download

import (
	"context"
	"sync"
)

// Gate is the pause/cancel primitive shared by every worker of one engine
// run. Workers call Wait before each request and before each chunk write:
// while paused, Wait blocks until Resume or Cancel; after Cancel it always
// returns ErrCancelled immediately.
type Gate struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool

	// resumeCh is replaced on each Pause; closing it releases waiters
	resumeCh chan struct{}
	cancelCh chan struct{}
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{
		resumeCh: make(chan struct{}),
		cancelCh: make(chan struct{}),
	}
}

// Pause closes the gate. Subsequent Wait calls block until Resume or
// Cancel. Idempotent.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused || g.cancelled {
		return
	}
	g.paused = true
	g.resumeCh = make(chan struct{})
}

// Resume reopens a paused gate, releasing all blocked waiters. Idempotent.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused || g.cancelled {
		return
	}
	g.paused = false
	close(g.resumeCh)
}

// Cancel releases every waiter, paused or not, with ErrCancelled.
// Idempotent and final: a cancelled gate never reopens.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled {
		return
	}
	g.cancelled = true
	close(g.cancelCh)
}

// Paused reports whether the gate is currently closed for pause.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Cancelled reports whether Cancel was called.
func (g *Gate) Cancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}

// Wait blocks while the gate is paused and returns ErrCancelled once the
// gate (or the context) is cancelled. Returns nil when the caller may
// proceed.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.cancelled {
			g.mu.Unlock()
			return ErrCancelled
		}
		if !g.paused {
			g.mu.Unlock()
			return nil
		}
		resume := g.resumeCh
		g.mu.Unlock()

		select {
		case <-resume:
		case <-g.cancelCh:
			return ErrCancelled
		case <-ctx.Done():
			return ErrCancelled
		}
	}
}
