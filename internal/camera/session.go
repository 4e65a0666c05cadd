package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SessionProvider binds use cases to a camera for the lifetime of an owner
// context. Cancelling the owner releases its bindings.
type SessionProvider interface {
	BindToLifecycle(owner context.Context, selector Selector, useCases ...UseCase) error
	UnbindAll()
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	Devices []Device
	// FrameInterval is the preview/analysis frame period. Zero disables
	// the frame loop; still capture still works.
	FrameInterval time.Duration
	Aspect        AspectRatio
	Logger        *slog.Logger
}

// Provider is the device-backed SessionProvider.
type Provider struct {
	devices       []Device
	frameInterval time.Duration
	aspect        AspectRatio
	logger        *slog.Logger

	mu       sync.Mutex
	bindings map[*binding]struct{}
	bound    map[UseCase]*binding
}

type binding struct {
	device   Device
	useCases []UseCase
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewProvider creates a provider over the given devices.
func NewProvider(cfg ProviderConfig) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	aspect := cfg.Aspect
	if aspect == "" {
		aspect = Ratio16x9
	}
	return &Provider{
		devices:       cfg.Devices,
		frameInterval: cfg.FrameInterval,
		aspect:        aspect,
		logger:        logger.With("component", "camera"),
		bindings:      make(map[*binding]struct{}),
		bound:         make(map[UseCase]*binding),
	}
}

// BindToLifecycle attaches useCases to the first device matching selector
// until owner is done or UnbindAll is called.
func (p *Provider) BindToLifecycle(owner context.Context, selector Selector, useCases ...UseCase) error {
	if err := owner.Err(); err != nil {
		return fmt.Errorf("lifecycle owner already finished: %w", err)
	}
	device := p.find(selector)
	if device == nil {
		return fmt.Errorf("%w: lens facing %s", ErrNoCamera, selector.LensFacing)
	}

	p.mu.Lock()
	for _, uc := range useCases {
		if _, ok := p.bound[uc]; ok {
			p.mu.Unlock()
			return fmt.Errorf("use case %T is already bound", uc)
		}
	}
	ctx, cancel := context.WithCancel(owner)
	b := &binding{
		device:   device,
		useCases: useCases,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	p.bindings[b] = struct{}{}
	for _, uc := range useCases {
		p.bound[uc] = b
		uc.attach(device)
	}
	p.mu.Unlock()

	p.logger.Info("camera bound", "device", device.Name(), "use_cases", len(useCases))
	go p.run(ctx, b)
	return nil
}

// UnbindAll releases every binding and waits for their frame loops to stop.
func (p *Provider) UnbindAll() {
	p.mu.Lock()
	active := make([]*binding, 0, len(p.bindings))
	for b := range p.bindings {
		active = append(active, b)
	}
	p.mu.Unlock()

	for _, b := range active {
		b.cancel()
		<-b.done
	}
}

// Bound reports whether any use case is bound.
func (p *Provider) Bound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bindings) > 0
}

// Devices returns the names of configured devices.
func (p *Provider) Devices() []string {
	names := make([]string, len(p.devices))
	for i, d := range p.devices {
		names[i] = d.Name()
	}
	return names
}

func (p *Provider) find(selector Selector) Device {
	for _, d := range p.devices {
		if selector.LensFacing == "" || d.Facing() == selector.LensFacing {
			return d
		}
	}
	return nil
}

func (p *Provider) run(ctx context.Context, b *binding) {
	defer close(b.done)
	defer p.release(b)

	var preview *Preview
	var analysis *ImageAnalysis
	for _, uc := range b.useCases {
		switch v := uc.(type) {
		case *Preview:
			preview = v
		case *ImageAnalysis:
			analysis = v
		}
	}
	if p.frameInterval <= 0 || (preview == nil && analysis == nil) {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(p.frameInterval)
	defer ticker.Stop()

	var seq uint64
	for {
		data, err := b.device.Capture(ctx, Settings{Flash: FlashOff, Aspect: p.aspect})
		switch {
		case err == nil:
			seq++
			f := Frame{Data: data, Seq: seq, Timestamp: time.Now()}
			if preview != nil {
				preview.render(f)
			}
			if analysis != nil {
				analysis.deliver(ctx, f)
			}
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return
		default:
			p.logger.Warn("preview frame failed", "device", b.device.Name(), "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Provider) release(b *binding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, uc := range b.useCases {
		uc.detach()
		delete(p.bound, uc)
	}
	delete(p.bindings, b)
	p.logger.Info("camera unbound", "device", b.device.Name())
}
