package camera

import (
	"context"
	"sync"
)

// Lifecycle hands out owner contexts derived from a base context. Starting
// a new owner ends the previous one, so at most one is active.
type Lifecycle struct {
	base context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewLifecycle creates a lifecycle bounded by base.
func NewLifecycle(base context.Context) *Lifecycle {
	return &Lifecycle{base: base}
}

// Start ends the current owner, if any, and returns a new one.
func (l *Lifecycle) Start() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(l.base)
	l.cancel = cancel
	return ctx
}

// Stop ends the current owner.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
