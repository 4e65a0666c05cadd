package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what started a recognition pass.
type Kind string

const (
	KindCapture Kind = "capture"
	KindPick    Kind = "pick"
)

// Phase is the position of a pass in the capture/recognize state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCapturing   Phase = "capturing"
	PhaseSaved       Phase = "saved"
	PhaseRecognizing Phase = "recognizing"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
	PhaseSkipped     Phase = "skipped"
	PhaseCancelled   Phase = "cancelled"
	PhaseSuperseded  Phase = "superseded"
)

// Terminal reports whether no further transitions can happen.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseFailed, PhaseSkipped, PhaseCancelled, PhaseSuperseded:
		return true
	}
	return false
}

// Task is a future for one capture or pick pass.
// It is safe for concurrent use.
type Task struct {
	ID         string
	Kind       Kind
	Generation uint64
	CreatedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	phase       Phase
	reference   string
	text        *string
	err         error
	completedAt *time.Time
}

// NewTask creates a task whose context derives from parent.
func NewTask(parent context.Context, kind Kind, generation uint64) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		Generation: generation,
		CreatedAt:  time.Now().UTC(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		phase:      PhaseIdle,
	}
}

// Context is cancelled when the task is cancelled or its parent ends.
func (t *Task) Context() context.Context {
	return t.ctx
}

// SetPhase moves a running task to a non-terminal phase.
// Ignored once the task has finished.
func (t *Task) SetPhase(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase.Terminal() {
		return
	}
	t.phase = p
}

// SetReference records the image reference the pass operates on.
func (t *Task) SetReference(ref string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reference = ref
}

// Finish moves the task to a terminal phase. Only the first call has effect.
// Returns false if the task had already finished.
func (t *Task) Finish(p Phase, text *string, err error) bool {
	t.mu.Lock()
	if t.phase.Terminal() {
		t.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	t.phase = p
	t.text = text
	t.err = err
	t.completedAt = &now
	t.mu.Unlock()

	close(t.done)
	t.cancel()
	return true
}

// Cancel aborts the pass. A cancelled pass never writes view state.
func (t *Task) Cancel() bool {
	t.cancel()
	return t.Finish(PhaseCancelled, nil, context.Canceled)
}

// Done is closed when the task reaches a terminal phase.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Phase returns the current phase.
func (t *Task) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Err returns the failure recorded on the task, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Text returns the recognized text, or nil when recognition did not succeed.
func (t *Task) Text() *string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// Record is the JSON view of a task.
type Record struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Generation  uint64     `json:"generation"`
	Phase       Phase      `json:"phase"`
	Reference   string     `json:"reference,omitempty"`
	Text        *string    `json:"text,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PlainText returns the recognized text, or the phase and error for
// passes that produced none.
func (r Record) PlainText() string {
	if r.Text != nil {
		return *r.Text
	}
	if r.Error != "" {
		return fmt.Sprintf("[%s] %s", r.Phase, r.Error)
	}
	return "[" + string(r.Phase) + "]"
}

// Record returns a snapshot of the task.
func (t *Task) Record() Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := Record{
		ID:          t.ID,
		Kind:        t.Kind,
		Generation:  t.Generation,
		Phase:       t.phase,
		Reference:   t.reference,
		Text:        t.text,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.completedAt,
	}
	if t.err != nil {
		r.Error = t.err.Error()
	}
	return r
}
