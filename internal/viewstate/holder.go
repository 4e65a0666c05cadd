// Package viewstate holds the client-observable scan state and forwards
// user intents to the camera repository. All state lives on the dispatch
// executor goroutine; public methods post to it.
package viewstate

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/docscan/internal/camera"
	"github.com/jackzampolin/docscan/internal/dispatch"
	"github.com/jackzampolin/docscan/internal/imageproc"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
)

// DefaultNoticeDuration is how long a capture notice stays visible.
const DefaultNoticeDuration = 2 * time.Second

// Snapshot is a read-only copy of the view state.
type Snapshot struct {
	RecognizedText *string `json:"recognized_text"`
	CopyVisible    bool    `json:"copy_visible"`
	DismissVisible bool    `json:"dismiss_visible"`
	Notice         string  `json:"notice,omitempty"`
	Generation     uint64  `json:"generation"`
}

// PlainText returns the recognized text, or "" when there is none.
func (s Snapshot) PlainText() string {
	if s.RecognizedText == nil {
		return ""
	}
	return *s.RecognizedText
}

// Repository is the subset of camera.Repository the holder drives.
type Repository interface {
	BindPreview(owner context.Context, surface camera.Surface) error
	UnbindPreview()
	StartCapture(task *jobs.Task, ui camera.UI)
	StartPicked(task *jobs.Task, ref mediastore.Reference, sink imageproc.Sink)
}

// Remover deletes images the holder owns once their pass is over.
type Remover interface {
	Remove(ref mediastore.Reference) error
}

// Config configures a Holder.
type Config struct {
	Repository Repository
	Executor   *dispatch.Executor
	Tracker    *jobs.Tracker
	Remover    Remover
	Logger     *slog.Logger

	// GuardSuperseded stops a pass from writing state once a newer pass
	// has written its result or Clear has run. When false the last
	// completion wins.
	GuardSuperseded bool
	NoticeDuration  time.Duration
}

// Holder is the view state holder.
type Holder struct {
	repo     Repository
	executor *dispatch.Executor
	tracker  *jobs.Tracker
	remover  Remover
	logger   *slog.Logger
	guard    atomic.Bool
	noticeD  time.Duration

	// Owned by the executor goroutine.
	state       Snapshot
	written     uint64 // generation of the last written result or Clear
	subscribers map[chan Snapshot]struct{}
	noticeTimer *time.Timer
	noticeSeq   uint64
}

// New creates a holder. The executor must be running for intents to apply.
func New(cfg Config) *Holder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = jobs.NewTracker(jobs.DefaultRetain, logger)
	}
	d := cfg.NoticeDuration
	if d <= 0 {
		d = DefaultNoticeDuration
	}
	h := &Holder{
		repo:        cfg.Repository,
		executor:    cfg.Executor,
		tracker:     tracker,
		remover:     cfg.Remover,
		logger:      logger.With("component", "viewstate"),
		noticeD:     d,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	h.guard.Store(cfg.GuardSuperseded)
	return h
}

// Tracker returns the task tracker.
func (h *Holder) Tracker() *jobs.Tracker {
	return h.tracker
}

// SetGuardSuperseded toggles the superseded-pass guard.
func (h *Holder) SetGuardSuperseded(v bool) {
	h.guard.Store(v)
}

// Capture starts a capture pass. ctx bounds the pass, not the call.
func (h *Holder) Capture(ctx context.Context) (*jobs.Task, error) {
	var task *jobs.Task
	err := h.executor.Call(context.Background(), func() {
		task = h.open(ctx, jobs.KindCapture)
		h.repo.StartCapture(task, &pass{h: h, gen: task.Generation})
	})
	if task == nil {
		return nil, err
	}
	return task, nil
}

// Pick starts a recognition pass over a picked image. When owned is true
// the image is deleted once the pass finishes.
func (h *Holder) Pick(ctx context.Context, ref mediastore.Reference, owned bool) (*jobs.Task, error) {
	var task *jobs.Task
	err := h.executor.Call(context.Background(), func() {
		task = h.open(ctx, jobs.KindPick)
		h.repo.StartPicked(task, ref, &pass{h: h, gen: task.Generation})
	})
	if task == nil {
		// StartPicked never ran, so nothing else will release ref.
		if owned {
			h.release(ref)
		}
		return nil, err
	}
	if err != nil {
		h.logger.Warn("pick started as executor stopped", "task", task.ID, "error", err)
	}
	if owned {
		go func() {
			<-task.Done()
			h.release(ref)
		}()
	}
	return task, nil
}

func (h *Holder) release(ref mediastore.Reference) {
	if h.remover == nil {
		return
	}
	if err := h.remover.Remove(ref); err != nil {
		h.logger.Warn("failed to remove picked image", "reference", ref, "error", err)
	}
}

// open starts a new generation and registers its task. Executor only.
func (h *Holder) open(ctx context.Context, kind jobs.Kind) *jobs.Task {
	h.state.Generation++
	task := jobs.NewTask(ctx, kind, h.state.Generation)
	h.tracker.Add(task)
	h.logger.Debug("pass opened", "task", task.ID, "kind", kind, "generation", task.Generation)
	return task
}

// BindPreview forwards a preview bind. The error is returned for callers
// that report it; the binding failure is already logged.
func (h *Holder) BindPreview(owner context.Context, surface camera.Surface) error {
	return h.repo.BindPreview(owner, surface)
}

// UnbindPreview releases the preview.
func (h *Holder) UnbindPreview() {
	h.repo.UnbindPreview()
}

// Clear drops the recognized text and hides both buttons. Passes started
// before Clear can no longer write when the guard is on.
func (h *Holder) Clear() error {
	return h.executor.Post(func() {
		h.state.Generation++
		h.written = h.state.Generation
		h.state.RecognizedText = nil
		h.state.CopyVisible = false
		h.state.DismissVisible = false
		h.publish()
	})
}

// Snapshot returns the current state.
func (h *Holder) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := h.executor.Call(ctx, func() { s = h.snapshot() })
	return s, err
}

// Subscribe returns a channel receiving the current state and every later
// change. Slow readers only see the latest value. The channel is closed
// when ctx is done or the executor stops.
func (h *Holder) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 1)
	err := h.executor.Call(ctx, func() {
		h.subscribers[ch] = struct{}{}
		ch <- h.snapshot()
	})
	if err != nil {
		return nil, err
	}
	var once sync.Once
	closeCh := func() { once.Do(func() { close(ch) }) }
	go func() {
		select {
		case <-ctx.Done():
		case <-h.executor.Stopped():
			// The executor is gone; nothing else touches subscribers.
			closeCh()
			return
		}
		removed := make(chan struct{})
		if err := h.executor.Post(func() {
			delete(h.subscribers, ch)
			closeCh()
			close(removed)
		}); err != nil {
			closeCh()
			return
		}
		// A stopping executor may drop the queued removal.
		select {
		case <-removed:
		case <-h.executor.Stopped():
			closeCh()
		}
	}()
	return ch, nil
}

func (h *Holder) snapshot() Snapshot {
	s := h.state
	if s.RecognizedText != nil {
		text := *s.RecognizedText
		s.RecognizedText = &text
	}
	return s
}

func (h *Holder) publish() {
	s := h.snapshot()
	for ch := range h.subscribers {
		for sent := false; !sent; {
			select {
			case ch <- s:
				sent = true
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	}
}

// The setters run on the executor and only touch state. Subscribers see
// the writes of one delivery together once the pass commits.
func (h *Holder) setRecognizedText(gen uint64, text string) {
	h.state.RecognizedText = &text
	if gen > h.written {
		h.written = gen
	}
}

func (h *Holder) setCopyVisible() {
	h.state.CopyVisible = true
}

func (h *Holder) setDismissVisible() {
	h.state.DismissVisible = true
}

func (h *Holder) notify(message string) {
	h.state.Notice = message
	h.noticeSeq++
	seq := h.noticeSeq
	if h.noticeTimer != nil {
		h.noticeTimer.Stop()
	}
	h.noticeTimer = h.executor.AfterFunc(h.noticeD, func() {
		if h.noticeSeq != seq {
			return
		}
		h.state.Notice = ""
		h.noticeTimer = nil
		h.publish()
	})
	h.publish()
}

// pass is the sink handed to one capture or pick. With the guard on it
// stops writing once a newer pass has written or Clear has run. Intents
// that fail or are skipped never supersede it.
type pass struct {
	h   *Holder
	gen uint64
}

func (p *pass) Current() bool {
	return !p.h.guard.Load() || p.gen >= p.h.written
}

func (p *pass) SetRecognizedText(text string) { p.h.setRecognizedText(p.gen, text) }
func (p *pass) SetCopyVisible()               { p.h.setCopyVisible() }
func (p *pass) SetDismissVisible()            { p.h.setDismissVisible() }
func (p *pass) Commit()                       { p.h.publish() }
func (p *pass) Notify(message string)         { p.h.notify(message) }

var (
	_ camera.UI           = (*pass)(nil)
	_ imageproc.Guard     = (*pass)(nil)
	_ imageproc.Committer = (*pass)(nil)
)
