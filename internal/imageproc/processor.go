// Package imageproc runs one recognition pass: read an image reference,
// orient it from its stored EXIF tag, recognize text asynchronously and
// deliver the result to a sink on the dispatch executor.
package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/jackzampolin/docscan/internal/dispatch"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
	"github.com/jackzampolin/docscan/internal/orientation"
	"github.com/jackzampolin/docscan/internal/providers"
)

// Sink receives the outcome of a successful pass. All three calls happen
// in one executor callback.
type Sink interface {
	SetRecognizedText(text string)
	SetCopyVisible()
	SetDismissVisible()
}

// Guard is implemented by sinks that can be superseded by a newer pass.
type Guard interface {
	Current() bool
}

// Committer is implemented by sinks that publish their writes together.
// Commit runs after the three Sink calls, in the same callback.
type Committer interface {
	Commit()
}

// RecognizerSource resolves the recognizer at pass time, so config reloads
// apply to the next pass.
type RecognizerSource func() (providers.Recognizer, error)

// Config configures a Processor.
type Config struct {
	Resolver   mediastore.Resolver
	Recognizer RecognizerSource
	Executor   dispatch.Poster
	Logger     *slog.Logger

	// RequireOrientation skips recognition for images without an EXIF
	// orientation tag. When false they are treated as upright.
	RequireOrientation bool
}

// Processor runs recognition passes.
type Processor struct {
	resolver           mediastore.Resolver
	recognizer         RecognizerSource
	executor           dispatch.Poster
	logger             *slog.Logger
	requireOrientation atomic.Bool
}

// New creates a processor.
func New(cfg Config) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		resolver:   cfg.Resolver,
		recognizer: cfg.Recognizer,
		executor:   cfg.Executor,
		logger:     logger.With("component", "imageproc"),
	}
	p.requireOrientation.Store(cfg.RequireOrientation)
	return p
}

// SetRequireOrientation changes the missing-orientation policy for
// subsequent passes. Used on config reload.
func (p *Processor) SetRequireOrientation(v bool) {
	p.requireOrientation.Store(v)
}

// Process starts a pass over ref and returns immediately. The returned task
// completes when the pass finishes, is skipped, fails or is cancelled.
func (p *Processor) Process(ctx context.Context, ref mediastore.Reference, sink Sink) *jobs.Task {
	task := jobs.NewTask(ctx, jobs.KindPick, 0)
	p.Run(task, ref, sink)
	return task
}

// Run starts a pass for an existing task, e.g. one created at capture time.
func (p *Processor) Run(task *jobs.Task, ref mediastore.Reference, sink Sink) {
	task.SetReference(ref.String())
	task.SetPhase(jobs.PhaseSaved)
	go p.run(task, ref, sink, p.requireOrientation.Load())
}

func (p *Processor) run(task *jobs.Task, ref mediastore.Reference, sink Sink, requireOrientation bool) {
	ctx := task.Context()
	logger := p.logger.With("task", task.ID, "reference", ref)

	data, err := p.read(ctx, ref)
	if err != nil {
		p.fail(task, logger, "failed to read image", err)
		return
	}

	orient, ok := orientation.Read(data)
	img, format, err := orientation.Decode(data)
	if err != nil {
		p.fail(task, logger, "failed to decode image", err)
		return
	}
	if !ok {
		if requireOrientation {
			logger.Info("image has no orientation metadata, skipping recognition")
			task.Finish(jobs.PhaseSkipped, nil, nil)
			return
		}
		orient = orientation.Normal
	}

	payload, err := prepare(data, format, img, orient)
	if err != nil {
		p.fail(task, logger, "failed to encode image", err)
		return
	}

	rec, err := p.recognizer()
	if err != nil {
		p.fail(task, logger, "no recognizer available", err)
		return
	}

	task.SetPhase(jobs.PhaseRecognizing)
	logger.Debug("recognizing", "recognizer", rec.Name(), "orientation", orient, "bytes", len(payload))

	result, err := rec.Recognize(ctx, payload)
	if err != nil {
		p.fail(task, logger, "text recognition failed", err)
		return
	}
	text := result.Text

	err = p.executor.Post(func() {
		if g, ok := sink.(Guard); ok && !g.Current() {
			if task.Finish(jobs.PhaseSuperseded, &text, nil) {
				logger.Info("pass superseded, result dropped")
			}
			return
		}
		if !task.Finish(jobs.PhaseDone, &text, nil) {
			return
		}
		sink.SetRecognizedText(text)
		sink.SetCopyVisible()
		sink.SetDismissVisible()
		if c, ok := sink.(Committer); ok {
			c.Commit()
		}
	})
	if err != nil {
		p.fail(task, logger, "failed to deliver result", err)
		return
	}
	logger.Info("text recognized", "recognizer", rec.Name(), "chars", len(text), "elapsed", result.ExecutionTime)
}

// read opens ref, reads it fully and releases the handle on every path.
func (p *Processor) read(ctx context.Context, ref mediastore.Reference) ([]byte, error) {
	rc, err := p.resolver.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

// fail records err on the task. Errors caused by cancellation finish the
// task as cancelled; everything else is logged and recorded as failed.
// Neither touches the sink.
func (p *Processor) fail(task *jobs.Task, logger *slog.Logger, msg string, err error) {
	if ctxErr := task.Context().Err(); ctxErr != nil {
		task.Finish(jobs.PhaseCancelled, nil, ctxErr)
		return
	}
	logger.Error(msg, "error", err)
	task.Finish(jobs.PhaseFailed, nil, fmt.Errorf("%s: %w", msg, err))
}

// prepare returns the bytes handed to the recognizer. Upright JPEG and PNG
// input is passed through; anything else is oriented and encoded as PNG.
func prepare(data []byte, format string, img image.Image, o orientation.Orientation) ([]byte, error) {
	if o == orientation.Normal && (format == "jpeg" || format == "png") {
		return data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, orientation.Apply(img, o)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
