package camera

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/docscan/internal/dispatch"
	"github.com/jackzampolin/docscan/internal/imageproc"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
)

// ErrNotBound is returned when capturing before the camera is bound.
var ErrNotBound = errors.New("camera is not bound to a lifecycle")

const (
	// CaptureMIMEType is the MIME type of stored captures.
	CaptureMIMEType = "image/jpeg"
	// DefaultRelativePath is where captures are stored inside the media root.
	DefaultRelativePath = "Pictures/Doc-Scanner"
	// NoticePrefix prefixes the transient notice shown on capture failure.
	NoticePrefix = "error message: "
)

// UI is the destination of a capture: the recognition sink plus a
// transient notice for capture failures.
type UI interface {
	imageproc.Sink
	Notify(message string)
}

// RepositoryConfig configures a Repository.
type RepositoryConfig struct {
	Provider  SessionProvider
	Store     Inserter
	Processor *imageproc.Processor
	Executor  dispatch.Poster
	Logger    *slog.Logger

	Selector       Selector
	Flash          FlashMode
	Aspect         AspectRatio
	TargetRotation int
	Backpressure   Backpressure
	RelativePath   string

	// Now is used for capture names. Defaults to time.Now.
	Now func() time.Time
}

// Repository orchestrates preview binding and the capture → recognize flow.
type Repository struct {
	provider     SessionProvider
	store        Inserter
	processor    *imageproc.Processor
	executor     dispatch.Poster
	logger       *slog.Logger
	selector     Selector
	relativePath string
	now          func() time.Time

	preview  *Preview
	capture  *ImageCapture
	analysis *ImageAnalysis
	luma     *LumaAnalyzer

	latest atomic.Pointer[jobs.Task]
}

// NewRepository creates a repository with its three use cases.
func NewRepository(cfg RepositoryConfig) *Repository {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	selector := cfg.Selector
	if selector.LensFacing == "" {
		selector = DefaultBackCamera
	}
	relativePath := cfg.RelativePath
	if relativePath == "" {
		relativePath = DefaultRelativePath
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := &Repository{
		provider:     cfg.Provider,
		store:        cfg.Store,
		processor:    cfg.Processor,
		executor:     cfg.Executor,
		logger:       logger.With("component", "camera_repository"),
		selector:     selector,
		relativePath: relativePath,
		now:          now,
		preview:      NewPreview(),
		capture: NewImageCapture(ImageCaptureConfig{
			Flash:          cfg.Flash,
			Aspect:         cfg.Aspect,
			TargetRotation: cfg.TargetRotation,
		}),
		analysis: NewImageAnalysis(ImageAnalysisConfig{Backpressure: cfg.Backpressure}),
		luma:     NewLumaAnalyzer(logger),
	}
	r.analysis.SetAnalyzer(r.luma)
	return r
}

// BindPreview binds preview, capture and analysis to owner, rendering
// frames to surface. Prior bindings are released first. A failure is
// logged and leaves the preview unbound.
func (r *Repository) BindPreview(owner context.Context, surface Surface) error {
	r.preview.SetSurface(surface)
	r.provider.UnbindAll()
	if err := r.provider.BindToLifecycle(owner, r.selector, r.preview, r.capture, r.analysis); err != nil {
		r.logger.Error("use case binding failed", "error", err)
		return err
	}
	return nil
}

// UnbindPreview releases all camera bindings.
func (r *Repository) UnbindPreview() {
	r.provider.UnbindAll()
}

// Bound reports whether still capture is currently possible.
func (r *Repository) Bound() bool {
	return r.capture.Bound()
}

// RelativePath returns the folder captures are stored under.
func (r *Repository) RelativePath() string {
	return r.relativePath
}

// SetFlashMode changes the flash mode for later captures.
func (r *Repository) SetFlashMode(m FlashMode) {
	r.capture.SetFlashMode(m)
}

// CaptureAndProcess starts a capture pass and returns its task.
func (r *Repository) CaptureAndProcess(ctx context.Context, ui UI) *jobs.Task {
	task := jobs.NewTask(ctx, jobs.KindCapture, 0)
	r.StartCapture(task, ui)
	return task
}

// StartCapture runs a capture pass for an existing task. Exactly one
// capture is attempted; a failure is shown as a notice on ui.
func (r *Repository) StartCapture(task *jobs.Task, ui UI) {
	r.latest.Store(task)
	task.SetPhase(jobs.PhaseCapturing)
	go r.takePicture(task, ui)
}

func (r *Repository) takePicture(task *jobs.Task, ui UI) {
	ctx := task.Context()
	logger := r.logger.With("task", task.ID)

	values := mediastore.ContentValues{
		DisplayName:  DisplayName(r.now()),
		MIMEType:     CaptureMIMEType,
		RelativePath: r.relativePath,
	}
	ref, err := r.capture.TakePicture(ctx, OutputOptions{Store: r.store, Values: values})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			task.Finish(jobs.PhaseCancelled, nil, ctxErr)
			return
		}
		logger.Error("photo capture failed", "error", err)
		task.Finish(jobs.PhaseFailed, nil, err)

		notice := NoticePrefix + err.Error()
		if perr := r.executor.Post(func() { ui.Notify(notice) }); perr != nil {
			logger.Warn("failed to post capture notice", "error", perr)
		}
		return
	}

	logger.Info("photo captured", "reference", ref)
	r.processor.Run(task, ref, ui)
}

// ProcessPicked starts a recognition pass over an externally picked image.
func (r *Repository) ProcessPicked(ctx context.Context, ref mediastore.Reference, sink imageproc.Sink) *jobs.Task {
	task := jobs.NewTask(ctx, jobs.KindPick, 0)
	r.StartPicked(task, ref, sink)
	return task
}

// StartPicked runs a pick pass for an existing task.
func (r *Repository) StartPicked(task *jobs.Task, ref mediastore.Reference, sink imageproc.Sink) {
	r.latest.Store(task)
	r.processor.Run(task, ref, sink)
}

// Phase reports the phase of the most recent pass, or idle.
func (r *Repository) Phase() jobs.Phase {
	task := r.latest.Load()
	if task == nil {
		return jobs.PhaseIdle
	}
	return task.Phase()
}

// AnalysisStats returns frame analysis statistics.
func (r *Repository) AnalysisStats() AnalysisStats {
	stats := r.luma.Stats()
	stats.Dropped = r.analysis.Dropped()
	return stats
}
