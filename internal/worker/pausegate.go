package worker

import (
	"context"
	"sync"
)

// PauseGate blocks worker goroutines while a task's workers are paused,
// shared across every worker in a Task Controller's pool. A closed channel
// stands in for "resumed"; Pause installs a fresh one, Resume closes it —
// this avoids the goroutine-leak risk of sync.Cond under ctx cancellation.
type PauseGate struct {
	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

// NewPauseGate builds an initially-resumed gate.
func NewPauseGate() *PauseGate {
	ch := make(chan struct{})
	close(ch)
	return &PauseGate{resumeCh: ch}
}

// Pause blocks future Wait calls until Resume is called.
func (g *PauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resumeCh = make(chan struct{})
}

// Resume wakes any goroutines blocked in Wait.
func (g *PauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resumeCh)
}

// Paused reports the current gate state.
func (g *PauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is paused, until Resume is called or ctx is done.
func (g *PauseGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.resumeCh
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
