package viewstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/docscan/internal/camera"
	"github.com/jackzampolin/docscan/internal/dispatch"
	"github.com/jackzampolin/docscan/internal/imageproc"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
)

type started struct {
	task *jobs.Task
	sink imageproc.Sink
	ref  mediastore.Reference
}

type fakeRepo struct {
	mu       sync.Mutex
	passes   []started
	bindErr  error
	binds    int
	unbinds  int
	surfaces []camera.Surface

	onPick func() // runs on the executor after a pick is recorded
}

func (r *fakeRepo) BindPreview(_ context.Context, surface camera.Surface) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binds++
	r.surfaces = append(r.surfaces, surface)
	return r.bindErr
}

func (r *fakeRepo) UnbindPreview() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbinds++
}

func (r *fakeRepo) StartCapture(task *jobs.Task, ui camera.UI) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, started{task: task, sink: ui})
}

func (r *fakeRepo) StartPicked(task *jobs.Task, ref mediastore.Reference, sink imageproc.Sink) {
	r.mu.Lock()
	r.passes = append(r.passes, started{task: task, sink: sink, ref: ref})
	hook := r.onPick
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *fakeRepo) pass(i int) started {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.passes[i]
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []mediastore.Reference
}

func (f *fakeRemover) Remove(ref mediastore.Reference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, ref)
	return nil
}

func (f *fakeRemover) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

type fixture struct {
	h       *Holder
	repo    *fakeRepo
	remover *fakeRemover
	exec    *dispatch.Executor
}

func newFixture(t *testing.T, guard bool) *fixture {
	t.Helper()
	exec := dispatch.New(dispatch.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go exec.Run(ctx)
	t.Cleanup(cancel)

	repo := &fakeRepo{}
	remover := &fakeRemover{}
	h := New(Config{
		Repository:      repo,
		Executor:        exec,
		Remover:         remover,
		GuardSuperseded: guard,
		NoticeDuration:  30 * time.Millisecond,
	})
	return &fixture{h: h, repo: repo, remover: remover, exec: exec}
}

// complete mimics the processor's delivery callback.
func (f *fixture) complete(t *testing.T, sink imageproc.Sink, text string) bool {
	t.Helper()
	var wrote bool
	err := f.exec.Call(context.Background(), func() {
		if g, ok := sink.(imageproc.Guard); ok && !g.Current() {
			return
		}
		sink.SetRecognizedText(text)
		sink.SetCopyVisible()
		sink.SetDismissVisible()
		if c, ok := sink.(imageproc.Committer); ok {
			c.Commit()
		}
		wrote = true
	})
	if err != nil {
		t.Fatal(err)
	}
	return wrote
}

func (f *fixture) snapshot(t *testing.T) Snapshot {
	t.Helper()
	s, err := f.h.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHolder_InitialState(t *testing.T) {
	f := newFixture(t, true)
	s := f.snapshot(t)
	if s.RecognizedText != nil || s.CopyVisible || s.DismissVisible || s.Notice != "" {
		t.Errorf("initial snapshot = %+v, want empty", s)
	}
}

func TestHolder_CaptureScenario(t *testing.T) {
	f := newFixture(t, true)

	task, err := f.h.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if task.Kind != jobs.KindCapture || task.Generation != 1 {
		t.Errorf("task kind=%s gen=%d", task.Kind, task.Generation)
	}
	if _, ok := f.h.Tracker().Get(task.ID); !ok {
		t.Error("task not tracked")
	}

	if !f.complete(t, f.repo.pass(0).sink, "INVOICE #123") {
		t.Fatal("current pass should write")
	}
	s := f.snapshot(t)
	if s.RecognizedText == nil || *s.RecognizedText != "INVOICE #123" || !s.CopyVisible || !s.DismissVisible {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestHolder_EmptyText(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.h.Capture(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.complete(t, f.repo.pass(0).sink, "")

	s := f.snapshot(t)
	if s.RecognizedText == nil || *s.RecognizedText != "" {
		t.Errorf("text = %v, want empty string", s.RecognizedText)
	}
	if !s.CopyVisible || !s.DismissVisible {
		t.Error("flags should be set for empty text")
	}
}

func TestHolder_Clear(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.h.Capture(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.complete(t, f.repo.pass(0).sink, "text")

	if err := f.h.Clear(); err != nil {
		t.Fatal(err)
	}
	s := f.snapshot(t)
	if s.RecognizedText != nil || s.CopyVisible || s.DismissVisible {
		t.Errorf("after Clear snapshot = %+v", s)
	}

	// Clear on empty state is a no-op apart from the generation.
	if err := f.h.Clear(); err != nil {
		t.Fatal(err)
	}
	if s := f.snapshot(t); s.RecognizedText != nil || s.CopyVisible || s.DismissVisible {
		t.Errorf("second Clear snapshot = %+v", s)
	}
}

func TestHolder_ConcurrentPasses(t *testing.T) {
	t.Run("guard on: newest written result wins", func(t *testing.T) {
		f := newFixture(t, true)
		if _, err := f.h.Capture(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, err := f.h.Pick(context.Background(), "file:///tmp/b.jpg", false); err != nil {
			t.Fatal(err)
		}
		newer, older := f.repo.pass(1).sink, f.repo.pass(0).sink

		if !f.complete(t, newer, "B") {
			t.Fatal("newest pass should write")
		}
		if f.complete(t, older, "A") {
			t.Error("superseded pass wrote state")
		}
		if s := f.snapshot(t); *s.RecognizedText != "B" {
			t.Errorf("text = %q, want B", *s.RecognizedText)
		}
	})

	t.Run("guard on: older pass may write before newer completes", func(t *testing.T) {
		f := newFixture(t, true)
		if _, err := f.h.Capture(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, err := f.h.Pick(context.Background(), "file:///tmp/b.jpg", false); err != nil {
			t.Fatal(err)
		}
		if !f.complete(t, f.repo.pass(0).sink, "A") {
			t.Fatal("older pass should write while no newer result exists")
		}
		if !f.complete(t, f.repo.pass(1).sink, "B") {
			t.Fatal("newer pass should write")
		}
		if s := f.snapshot(t); *s.RecognizedText != "B" {
			t.Errorf("text = %q, want B", *s.RecognizedText)
		}
	})

	t.Run("guard on: failed capture does not supersede pick", func(t *testing.T) {
		f := newFixture(t, true)
		if _, err := f.h.Pick(context.Background(), "file:///tmp/a.jpg", false); err != nil {
			t.Fatal(err)
		}
		capture, err := f.h.Capture(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		ui := f.repo.pass(1).sink.(camera.UI)
		if err := f.exec.Call(context.Background(), func() {
			capture.Finish(jobs.PhaseFailed, nil, errors.New("no camera"))
			ui.Notify("error message: no camera")
		}); err != nil {
			t.Fatal(err)
		}

		if !f.complete(t, f.repo.pass(0).sink, "INVOICE #123") {
			t.Fatal("pick result was dropped after a failed capture")
		}
		s := f.snapshot(t)
		if s.RecognizedText == nil || *s.RecognizedText != "INVOICE #123" || !s.CopyVisible || !s.DismissVisible {
			t.Errorf("snapshot = %+v, want pick result with both buttons", s)
		}
	})

	t.Run("guard off: last completion wins", func(t *testing.T) {
		f := newFixture(t, false)
		if _, err := f.h.Capture(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, err := f.h.Pick(context.Background(), "file:///tmp/b.jpg", false); err != nil {
			t.Fatal(err)
		}
		f.complete(t, f.repo.pass(1).sink, "B")
		f.complete(t, f.repo.pass(0).sink, "A")
		if s := f.snapshot(t); *s.RecognizedText != "A" {
			t.Errorf("text = %q, want A", *s.RecognizedText)
		}
	})

	t.Run("clear supersedes running pass", func(t *testing.T) {
		f := newFixture(t, true)
		if _, err := f.h.Capture(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := f.h.Clear(); err != nil {
			t.Fatal(err)
		}
		if f.complete(t, f.repo.pass(0).sink, "late") {
			t.Error("pass started before Clear wrote state")
		}

		f.h.SetGuardSuperseded(false)
		if !f.complete(t, f.repo.pass(0).sink, "late") {
			t.Error("with the guard off every pass writes")
		}
	})
}

func TestHolder_Notice(t *testing.T) {
	f := newFixture(t, true)
	if _, err := f.h.Capture(context.Background()); err != nil {
		t.Fatal(err)
	}
	ui := f.repo.pass(0).sink.(camera.UI)
	if err := f.exec.Call(context.Background(), func() { ui.Notify("error message: boom") }); err != nil {
		t.Fatal(err)
	}

	if s := f.snapshot(t); s.Notice != "error message: boom" {
		t.Errorf("notice = %q", s.Notice)
	}
	if s := f.snapshot(t); s.RecognizedText != nil || s.CopyVisible {
		t.Error("notice must not touch recognition state")
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.snapshot(t).Notice != "" {
		if time.Now().After(deadline) {
			t.Fatal("notice was not cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHolder_Subscribe(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := f.h.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	initial := <-ch
	if initial.RecognizedText != nil {
		t.Errorf("initial = %+v", initial)
	}

	if _, err := f.h.Capture(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.complete(t, f.repo.pass(0).sink, "hello")

	// The three writes are published together.
	select {
	case s := <-ch:
		if s.RecognizedText == nil || *s.RecognizedText != "hello" || !s.CopyVisible || !s.DismissVisible {
			t.Errorf("latest = %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// A late publish may still be buffered; the next read must close.
			if _, ok := <-ch; ok {
				t.Error("channel should close after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestHolder_OwnedPickRemoved(t *testing.T) {
	f := newFixture(t, true)
	task, err := f.h.Pick(context.Background(), "file:///tmp/upload.jpg", true)
	if err != nil {
		t.Fatal(err)
	}
	if f.remover.count() != 0 {
		t.Fatal("removed before pass finished")
	}
	task.Finish(jobs.PhaseDone, nil, nil)

	deadline := time.Now().Add(2 * time.Second)
	for f.remover.count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("owned pick was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHolder_PreviewForwarding(t *testing.T) {
	f := newFixture(t, true)
	fb := &camera.FrameBuffer{}
	if err := f.h.BindPreview(context.Background(), fb); err != nil {
		t.Fatal(err)
	}
	f.h.UnbindPreview()
	if f.repo.binds != 1 || f.repo.unbinds != 1 {
		t.Errorf("binds/unbinds = %d/%d", f.repo.binds, f.repo.unbinds)
	}

	f.repo.bindErr = camera.ErrNoCamera
	if err := f.h.BindPreview(context.Background(), fb); !errors.Is(err, camera.ErrNoCamera) {
		t.Errorf("BindPreview() error = %v", err)
	}
}

func TestHolder_StoppedExecutor(t *testing.T) {
	exec := dispatch.New(dispatch.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exec.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	remover := &fakeRemover{}
	h := New(Config{Repository: &fakeRepo{}, Executor: exec, Remover: remover})
	if _, err := h.Capture(context.Background()); !errors.Is(err, dispatch.ErrExecutorStopped) {
		t.Errorf("Capture() error = %v, want ErrExecutorStopped", err)
	}
	if _, err := h.Pick(context.Background(), "file:///tmp/x.jpg", true); err == nil {
		t.Error("Pick() should fail")
	}
	if remover.count() != 1 {
		t.Error("owned pick should be released when the intent fails")
	}
}

func TestHolder_SubscriberSeesWholeResult(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.h.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	<-ch

	if _, err := f.h.Capture(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := make(chan Snapshot, 1)
	go func() { first <- <-ch }()
	// Let the reader block on the channel before the result lands.
	time.Sleep(20 * time.Millisecond)

	f.complete(t, f.repo.pass(0).sink, "hello")

	select {
	case s := <-first:
		if s.RecognizedText == nil || *s.RecognizedText != "hello" || !s.CopyVisible || !s.DismissVisible {
			t.Errorf("first update = %+v, want text with both buttons", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

func TestHolder_SubscribeClosesWhenExecutorStops(t *testing.T) {
	exec := dispatch.New(dispatch.Config{})
	execCtx, stop := context.WithCancel(context.Background())
	go exec.Run(execCtx)
	defer stop()

	h := New(Config{Repository: &fakeRepo{}, Executor: exec})
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := h.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Hold the executor so the unsubscribe queues behind this call.
	release := make(chan struct{})
	if err := exec.Post(func() { <-release }); err != nil {
		t.Fatal(err)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)
	stop()
	close(release)

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after the executor stopped")
		}
	}
}

func TestHolder_OwnedPickKeptWhileRunning(t *testing.T) {
	exec := dispatch.New(dispatch.Config{})
	ctx, stop := context.WithCancel(context.Background())
	go exec.Run(ctx)
	defer stop()

	repo := &fakeRepo{onPick: stop}
	remover := &fakeRemover{}
	h := New(Config{Repository: repo, Executor: exec, Remover: remover})

	task, err := h.Pick(context.Background(), "file:///tmp/upload.jpg", true)
	if err != nil || task == nil {
		t.Fatalf("Pick() = %v, %v; want the started task", task, err)
	}
	<-exec.Stopped()
	if remover.count() != 0 {
		t.Fatal("image removed while its pass was still running")
	}

	task.Finish(jobs.PhaseCancelled, nil, nil)
	deadline := time.Now().Add(2 * time.Second)
	for remover.count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("owned pick was not removed after its pass finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
