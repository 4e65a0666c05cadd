package jobs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// DefaultRetain is how many finished tasks the tracker keeps.
const DefaultRetain = 50

// Tracker keeps recent tasks in memory for the task API.
// Running tasks are never pruned.
type Tracker struct {
	logger *slog.Logger
	retain int

	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewTracker creates a tracker retaining up to retain finished tasks.
func NewTracker(retain int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Tracker{
		logger: logger,
		retain: retain,
		tasks:  make(map[string]*Task),
	}
}

// Add registers a task.
func (tr *Tracker) Add(t *Task) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.tasks[t.ID] = t
	tr.order = append(tr.order, t.ID)
	tr.prune()
	tr.logger.Debug("task tracked", "id", t.ID, "kind", t.Kind, "generation", t.Generation)
}

// prune drops the oldest finished tasks beyond the retain limit. Caller holds mu.
func (tr *Tracker) prune() {
	finished := 0
	for _, id := range tr.order {
		if tr.tasks[id].Phase().Terminal() {
			finished++
		}
	}
	if finished <= tr.retain {
		return
	}
	drop := finished - tr.retain
	kept := tr.order[:0]
	for _, id := range tr.order {
		if drop > 0 && tr.tasks[id].Phase().Terminal() {
			delete(tr.tasks, id)
			drop--
			continue
		}
		kept = append(kept, id)
	}
	tr.order = kept
}

// Get returns a task by ID.
func (tr *Tracker) Get(id string) (*Task, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	t, ok := tr.tasks[id]
	return t, ok
}

// List returns task records, newest first.
func (tr *Tracker) List(filter ListFilter) []Record {
	tr.mu.RLock()
	records := make([]Record, 0, len(tr.order))
	for _, id := range tr.order {
		r := tr.tasks[id].Record()
		if filter.Phase != "" && r.Phase != filter.Phase {
			continue
		}
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		records = append(records, r)
	}
	tr.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records
}

// Latest returns the most recently added task, or nil.
func (tr *Tracker) Latest() *Task {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if len(tr.order) == 0 {
		return nil
	}
	return tr.tasks[tr.order[len(tr.order)-1]]
}

// CancelAll cancels every running task.
func (tr *Tracker) CancelAll(ctx context.Context) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	n := 0
	for _, t := range tr.tasks {
		if ctx.Err() != nil {
			break
		}
		if t.Cancel() {
			n++
		}
	}
	return n
}

// ListFilter specifies criteria for listing tasks.
type ListFilter struct {
	Phase Phase // Filter by phase (empty = all)
	Kind  Kind  // Filter by kind (empty = all)
	Limit int   // Max results (0 = all)
}
