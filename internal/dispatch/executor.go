// Package dispatch provides the single-goroutine executor that owns all
// view state mutation. Completions from capture and recognition goroutines
// are posted here so that state writes are serialized in arrival order.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrExecutorStopped is returned when work is posted after the executor exits.
var ErrExecutorStopped = errors.New("dispatch executor stopped")

// Poster accepts functions to run on a serial executor.
type Poster interface {
	Post(fn func()) error
}

// Executor runs posted functions one at a time on a single goroutine.
type Executor struct {
	logger *slog.Logger
	queue  chan func()

	stopped chan struct{}
	once    sync.Once
}

// Config configures a new Executor.
type Config struct {
	Logger    *slog.Logger
	QueueSize int // default: 256
}

// New creates an executor. Call Run to start it.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	return &Executor{
		logger:  logger.With("component", "dispatch"),
		queue:   make(chan func(), size),
		stopped: make(chan struct{}),
	}
}

// Run processes posted functions until ctx is cancelled.
// Functions still queued at cancellation are dropped.
func (e *Executor) Run(ctx context.Context) {
	defer e.once.Do(func() { close(e.stopped) })
	e.logger.Debug("executor started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("executor stopping", "dropped", len(e.queue))
			return
		case fn := <-e.queue:
			e.run(fn)
		}
	}
}

func (e *Executor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("dispatched function panicked", "panic", r)
		}
	}()
	fn()
}

// Post enqueues fn. It blocks while the queue is full and fails once the
// executor has stopped.
func (e *Executor) Post(fn func()) error {
	select {
	case <-e.stopped:
		return ErrExecutorStopped
	default:
	}
	select {
	case e.queue <- fn:
		return nil
	case <-e.stopped:
		return ErrExecutorStopped
	}
}

// Call runs fn on the executor and waits for it to finish.
func (e *Executor) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := e.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrExecutorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc posts fn once d has elapsed. The returned timer may be stopped
// to cancel the post.
func (e *Executor) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		if err := e.Post(fn); err != nil {
			e.logger.Debug("delayed post dropped", "error", err)
		}
	})
}

// Stopped is closed when Run returns.
func (e *Executor) Stopped() <-chan struct{} {
	return e.stopped
}

// Inline runs posted functions synchronously on the caller's goroutine.
// Used by one-shot CLI passes that have no long-lived state owner.
type Inline struct {
	mu sync.Mutex
}

// Post runs fn immediately, serialized with other Inline posts.
func (i *Inline) Post(fn func()) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	fn()
	return nil
}
