package inbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
)

type fakePicker struct {
	mu    sync.Mutex
	refs  []mediastore.Reference
	owned []bool
	tasks []*jobs.Task
}

func (p *fakePicker) Pick(ctx context.Context, ref mediastore.Reference, owned bool) (*jobs.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = append(p.refs, ref)
	p.owned = append(p.owned, owned)
	task := jobs.NewTask(ctx, jobs.KindPick, 0)
	p.tasks = append(p.tasks, task)
	return task, nil
}

func (p *fakePicker) task(i int) *jobs.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks[i]
}

func waitPicks(t *testing.T, p *fakePicker, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(p.picks()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("picks = %d, want %d", len(p.picks()), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (p *fakePicker) picks() []mediastore.Reference {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mediastore.Reference(nil), p.refs...)
}

func TestWatcher(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "existing.jpg"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	picker := &fakePicker{}
	w := New(Config{Dir: dir, Remove: true, Settle: 20 * time.Millisecond, Picker: picker})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"notes.txt", ".partial.jpg", "scan.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(picker.picks()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no pick after writing an image")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Allow any stray events to settle.
	time.Sleep(100 * time.Millisecond)

	refs := picker.picks()
	if len(refs) != 1 {
		t.Fatalf("picks = %v, want exactly one", refs)
	}
	if !strings.HasSuffix(string(refs[0]), "/inbox/scan.jpg") {
		t.Errorf("picked %s, want scan.jpg", refs[0])
	}
	if !picker.owned[0] {
		t.Error("expected owned pick when Remove is set")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "inbox")
	w := New(Config{Dir: dir, Picker: &fakePicker{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("inbox dir not created: %v", err)
	}
}

func TestWatcher_RepickAfterOverwrite(t *testing.T) {
	dir := t.TempDir()
	picker := &fakePicker{}
	w := New(Config{Dir: dir, Settle: 20 * time.Millisecond, Picker: picker})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "scan.jpg")
	if err := os.WriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitPicks(t, picker, 1)

	text := "first"
	picker.task(0).Finish(jobs.PhaseDone, &text, nil)
	// Let the watcher observe the finished pass.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitPicks(t, picker, 2)

	refs := picker.picks()
	if refs[0] != refs[1] {
		t.Errorf("picks = %v, want the same file twice", refs)
	}
	if picker.owned[1] {
		t.Error("pick owned without Remove")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
