package camera

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/docscan/internal/mediastore"
	"github.com/jackzampolin/docscan/internal/orientation"
)

// UseCase is a camera consumer bound to a session: Preview, ImageCapture
// or ImageAnalysis.
type UseCase interface {
	attach(d Device)
	detach()
}

// Frame is a single JPEG frame from the preview loop.
type Frame struct {
	Data      []byte
	Seq       uint64
	Timestamp time.Time
}

// Surface receives preview frames.
type Surface interface {
	Render(f Frame)
}

// Preview streams frames to a surface while bound.
type Preview struct {
	mu      sync.Mutex
	surface Surface
	device  Device
}

// NewPreview creates an unbound preview.
func NewPreview() *Preview {
	return &Preview{}
}

// SetSurface sets where frames are rendered. A nil surface discards frames.
func (p *Preview) SetSurface(s Surface) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.surface = s
}

func (p *Preview) attach(d Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.device = d
}

func (p *Preview) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.device = nil
}

func (p *Preview) render(f Frame) {
	p.mu.Lock()
	s := p.surface
	p.mu.Unlock()
	if s != nil {
		s.Render(f)
	}
}

// FrameBuffer is a Surface that keeps only the latest frame.
type FrameBuffer struct {
	mu     sync.RWMutex
	latest Frame
	ok     bool
}

// Render stores f as the latest frame.
func (b *FrameBuffer) Render(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = f
	b.ok = true
}

// Latest returns the most recent frame, if any.
func (b *FrameBuffer) Latest() (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.ok
}

// Inserter persists captured images.
type Inserter interface {
	Insert(ctx context.Context, values mediastore.ContentValues, r io.Reader) (mediastore.Reference, error)
}

// OutputOptions describe where a still capture is stored.
type OutputOptions struct {
	Store  Inserter
	Values mediastore.ContentValues
}

// ImageCaptureConfig configures still capture.
type ImageCaptureConfig struct {
	Flash  FlashMode
	Aspect AspectRatio
	// TargetRotation in degrees is stamped into captures whose JPEG lacks
	// an EXIF orientation tag.
	TargetRotation int
}

// ImageCapture takes still pictures from the bound device.
type ImageCapture struct {
	mu     sync.Mutex
	cfg    ImageCaptureConfig
	device Device
}

// NewImageCapture creates an unbound still-capture use case.
func NewImageCapture(cfg ImageCaptureConfig) *ImageCapture {
	if cfg.Flash == "" {
		cfg.Flash = FlashAuto
	}
	if cfg.Aspect == "" {
		cfg.Aspect = Ratio16x9
	}
	return &ImageCapture{cfg: cfg}
}

// SetFlashMode changes the flash mode for subsequent captures.
func (c *ImageCapture) SetFlashMode(m FlashMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Flash = m
}

// FlashMode returns the current flash mode.
func (c *ImageCapture) FlashMode() FlashMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Flash
}

func (c *ImageCapture) attach(d Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = d
}

func (c *ImageCapture) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = nil
}

// Bound reports whether the use case is attached to a device.
func (c *ImageCapture) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device != nil
}

// TakePicture captures one still image and writes it to opts.Store.
func (c *ImageCapture) TakePicture(ctx context.Context, opts OutputOptions) (mediastore.Reference, error) {
	c.mu.Lock()
	device, cfg := c.device, c.cfg
	c.mu.Unlock()

	if device == nil {
		return "", ErrNotBound
	}
	if opts.Store == nil {
		return "", fmt.Errorf("no output store configured")
	}

	data, err := device.Capture(ctx, Settings{Flash: cfg.Flash, Aspect: cfg.Aspect})
	if err != nil {
		return "", err
	}

	if _, ok := orientation.Read(data); !ok {
		o, err := orientation.FromRotation(cfg.TargetRotation)
		if err != nil {
			return "", err
		}
		if data, err = orientation.Inject(data, o); err != nil {
			return "", fmt.Errorf("failed to stamp orientation: %w", err)
		}
	}

	return opts.Store.Insert(ctx, opts.Values, bytes.NewReader(data))
}

// Analyzer consumes frames delivered by ImageAnalysis.
type Analyzer interface {
	Analyze(f Frame)
}

// ImageAnalysisConfig configures frame analysis.
type ImageAnalysisConfig struct {
	Backpressure Backpressure
	QueueDepth   int // block-producer only; default 6
}

// ImageAnalysis hands preview frames to an analyzer on its own goroutine.
type ImageAnalysis struct {
	strategy Backpressure
	depth    int

	mu       sync.Mutex
	analyzer Analyzer
	queue    chan Frame
	stop     chan struct{}
	dropped  atomic.Uint64
}

// NewImageAnalysis creates an unbound analysis use case.
func NewImageAnalysis(cfg ImageAnalysisConfig) *ImageAnalysis {
	if cfg.Backpressure == "" {
		cfg.Backpressure = KeepOnlyLatest
	}
	depth := 1
	if cfg.Backpressure == BlockProducer {
		depth = cfg.QueueDepth
		if depth <= 0 {
			depth = 6
		}
	}
	return &ImageAnalysis{strategy: cfg.Backpressure, depth: depth}
}

// SetAnalyzer sets the frame consumer. A nil analyzer discards frames.
func (a *ImageAnalysis) SetAnalyzer(an Analyzer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyzer = an
}

// Dropped returns how many frames were discarded under keep-only-latest.
func (a *ImageAnalysis) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *ImageAnalysis) attach(Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queue != nil {
		return
	}
	a.queue = make(chan Frame, a.depth)
	a.stop = make(chan struct{})
	go a.consume(a.queue, a.stop)
}

func (a *ImageAnalysis) detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queue == nil {
		return
	}
	close(a.stop)
	a.queue, a.stop = nil, nil
}

func (a *ImageAnalysis) consume(queue <-chan Frame, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case f := <-queue:
			a.mu.Lock()
			an := a.analyzer
			a.mu.Unlock()
			if an != nil {
				an.Analyze(f)
			}
		}
	}
}

// deliver enqueues f according to the backpressure strategy.
func (a *ImageAnalysis) deliver(ctx context.Context, f Frame) {
	a.mu.Lock()
	queue, stop := a.queue, a.stop
	a.mu.Unlock()
	if queue == nil {
		return
	}

	if a.strategy == BlockProducer {
		select {
		case queue <- f:
		case <-stop:
		case <-ctx.Done():
		}
		return
	}

	for {
		select {
		case queue <- f:
			return
		default:
		}
		select {
		case <-queue:
			a.dropped.Add(1)
		default:
		}
	}
}
