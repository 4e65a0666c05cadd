// Package inbox watches a folder and turns images dropped into it into
// pick intents, the way a gallery picker hands over a chosen photo.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
)

// DefaultSettle is how long a file must stay unchanged before it is picked.
const DefaultSettle = 250 * time.Millisecond

// Picker starts a recognition pass over a picked image.
type Picker interface {
	Pick(ctx context.Context, ref mediastore.Reference, owned bool) (*jobs.Task, error)
}

// Config configures a Watcher.
type Config struct {
	Dir    string
	Remove bool // delete files once their pass finishes
	Settle time.Duration
	Picker Picker
	Logger *slog.Logger
}

// Watcher picks images written to a directory.
type Watcher struct {
	dir    string
	remove bool
	settle time.Duration
	picker Picker
	logger *slog.Logger

	pending  map[string]time.Time
	picked   map[string]bool
	finished chan string
}

// New creates a watcher. Call Run to start it.
func New(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settle := cfg.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		dir:     cfg.Dir,
		remove:  cfg.Remove,
		settle:  settle,
		picker:  cfg.Picker,
		logger:  logger.With("component", "inbox", "dir", cfg.Dir),
		pending:  make(map[string]time.Time),
		picked:   make(map[string]bool),
		finished: make(chan string),
	}
}

// Run watches the directory until ctx is cancelled. Files already present
// at start are left alone.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox")

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case now := <-ticker.C:
			w.flush(ctx, now)
		case path := <-w.finished:
			// A later write to the same file is a new image.
			delete(w.picked, path)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || mediastore.MIMEType(name) == "" {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(w.pending, ev.Name)
		delete(w.picked, ev.Name)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if w.picked[ev.Name] {
			return
		}
		w.pending[ev.Name] = time.Now()
	}
}

// flush picks files that have been quiet for the settle period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < w.settle {
			continue
		}
		delete(w.pending, path)
		w.picked[path] = true

		ref := mediastore.FileReference(path)
		task, err := w.picker.Pick(ctx, ref, w.remove)
		if err != nil {
			w.logger.Error("failed to pick image", "file", path, "error", err)
			delete(w.picked, path)
			continue
		}
		w.logger.Info("picked image", "file", filepath.Base(path), "task", task.ID)
		go w.release(ctx, path, task)
	}
}

// release hands path back to the run loop once its pass is over.
func (w *Watcher) release(ctx context.Context, path string, task *jobs.Task) {
	select {
	case <-task.Done():
	case <-ctx.Done():
		return
	}
	select {
	case w.finished <- path:
	case <-ctx.Done():
	}
}
