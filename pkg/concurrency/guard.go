package concurrency

import (
	"context"
	"errors"
	"sync"
)

var ErrBusy = errors.New("an upload is already running")

// ConcurrencyGuard admits one task at a time and rejects the rest.
type ConcurrencyGuard struct {
	mu     sync.Mutex
	isBusy bool
	cancel context.CancelFunc
}

func NewConcurrencyGuard() *ConcurrencyGuard {
	return &ConcurrencyGuard{}
}

// ExecuteWithContext runs task with a context derived from ctx that Cancel
// can interrupt. It returns ErrBusy if another task holds the guard.
func (g *ConcurrencyGuard) ExecuteWithContext(ctx context.Context, task func(ctx context.Context) error) error {
	taskCtx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	if g.isBusy {
		g.mu.Unlock()
		cancel()
		return ErrBusy
	}
	g.isBusy = true
	g.cancel = cancel
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.isBusy = false
		g.cancel = nil
		g.mu.Unlock()
		cancel()
	}()
	return task(taskCtx)
}

// Busy reports whether a task is running.
func (g *ConcurrencyGuard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isBusy
}

// Cancel interrupts the running task, if any, and reports whether there was one.
func (g *ConcurrencyGuard) Cancel() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel == nil {
		return false
	}
	g.cancel()
	return true
}
