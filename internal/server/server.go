package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/camera"
	"github.com/jackzampolin/docscan/internal/config"
	"github.com/jackzampolin/docscan/internal/dispatch"
	"github.com/jackzampolin/docscan/internal/home"
	"github.com/jackzampolin/docscan/internal/imageproc"
	"github.com/jackzampolin/docscan/internal/inbox"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
	"github.com/jackzampolin/docscan/internal/providers"
	"github.com/jackzampolin/docscan/internal/server/endpoints"
	"github.com/jackzampolin/docscan/internal/svcctx"
	"github.com/jackzampolin/docscan/internal/viewstate"
)

// Server is the main docscan HTTP server.
// It owns the dispatch executor, the camera session and the view state
// holder, starting them on server start and releasing them on shutdown.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	executor  *dispatch.Executor
	registry  *providers.Registry
	store     *mediastore.Store
	processor *imageproc.Processor
	provider  *camera.Provider
	repo      *camera.Repository
	holder    *viewstate.Holder
	frames    *camera.FrameBuffer
	inbox     *inbox.Watcher

	bindOnStart bool

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from config)
	Host string
	// Port is the port to listen on (default: server.port from config)
	Port string
	// Home is the docscan home directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support.
	// When nil, built-in defaults are used.
	ConfigManager *config.Manager
	// SwaggerSpecPath overrides where swagger.json is read from
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}

	appCfg := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		appCfg = cfg.ConfigManager.Get()
	}
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	opts, err := parseCameraOptions(appCfg.Camera)
	if err != nil {
		return nil, err
	}
	devices, err := devicesFromConfig(appCfg.Camera, opts.lens)
	if err != nil {
		return nil, err
	}

	mediaDir := appCfg.Storage.MediaDir
	if mediaDir == "" {
		mediaDir = cfg.Home.MediaPath()
	}

	s := &Server{
		configMgr:   cfg.ConfigManager,
		home:        cfg.Home,
		logger:      cfg.Logger,
		bindOnStart: appCfg.Camera.BindOnStart,
		frames:      &camera.FrameBuffer{},
	}

	s.executor = dispatch.New(dispatch.Config{Logger: cfg.Logger})
	s.registry = providers.NewRegistryFromConfig(appCfg.ToRegistryConfig(), cfg.Logger)
	s.store = mediastore.New(mediaDir, cfg.Logger)
	s.processor = imageproc.New(imageproc.Config{
		Resolver:           s.store,
		Recognizer:         s.recognizer,
		Executor:           s.executor,
		Logger:             cfg.Logger,
		RequireOrientation: appCfg.Processing.RequireOrientation,
	})
	s.provider = camera.NewProvider(camera.ProviderConfig{
		Devices:       devices,
		FrameInterval: appCfg.Camera.FrameInterval(),
		Aspect:        opts.aspect,
		Logger:        cfg.Logger,
	})
	s.repo = camera.NewRepository(camera.RepositoryConfig{
		Provider:       s.provider,
		Store:          s.store,
		Processor:      s.processor,
		Executor:       s.executor,
		Logger:         cfg.Logger,
		Selector:       camera.Selector{LensFacing: opts.lens},
		Flash:          opts.flash,
		Aspect:         opts.aspect,
		TargetRotation: appCfg.Camera.TargetRotation,
		Backpressure:   opts.backpressure,
		RelativePath:   appCfg.Storage.RelativePath,
	})
	s.holder = viewstate.New(viewstate.Config{
		Repository:      s.repo,
		Executor:        s.executor,
		Tracker:         jobs.NewTracker(appCfg.Processing.TaskRetain, cfg.Logger),
		Remover:         s.store,
		Logger:          cfg.Logger,
		GuardSuperseded: appCfg.Processing.GuardSuperseded,
		NoticeDuration:  appCfg.Processing.NoticeDuration(),
	})

	if appCfg.Inbox.Enabled {
		dir := appCfg.Inbox.Dir
		if dir == "" {
			dir = cfg.Home.InboxPath()
		}
		s.inbox = inbox.New(inbox.Config{
			Dir:    dir,
			Remove: appCfg.Inbox.Remove,
			Picker: s.holder,
			Logger: cfg.Logger,
		})
	}

	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(s.reload)
	}

	maxUpload := int64(appCfg.Server.MaxUploadMB) << 20

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	s.endpointRegistry.Register(endpoints.All(endpoints.Config{
		SwaggerSpecPath: cfg.SwaggerSpecPath,
		MaxUploadBytes:  maxUpload,
	})...)
	cfg.Logger.Debug("registered routes", "routes", s.endpointRegistry.Routes())

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// No write timeout: state events stream and capture --wait block.
		IdleTimeout: 120 * time.Second,
	}

	return s, nil
}

// recognizer resolves the preferred registered recognizer for each pass.
func (s *Server) recognizer() (providers.Recognizer, error) {
	var order []string
	if s.configMgr != nil {
		order = s.configMgr.Get().Defaults.Recognizers
	} else {
		order = config.DefaultConfig().Defaults.Recognizers
	}
	return s.registry.Preferred(order)
}

// reload applies hot-reloadable settings. Device and storage changes need
// a restart.
func (s *Server) reload(c *config.Config) {
	s.registry.Reload(c.ToRegistryConfig())
	s.processor.SetRequireOrientation(c.Processing.RequireOrientation)
	s.holder.SetGuardSuperseded(c.Processing.GuardSuperseded)
	if m, err := camera.ParseFlashMode(c.Camera.Flash); err == nil {
		s.repo.SetFlashMode(m)
	} else {
		s.logger.Warn("ignoring flash mode from config", "error", err)
	}
	s.logger.Info("configuration reloaded")
}

// Start starts the executor, camera and HTTP server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Background work outlives request contexts but not the server.
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	go s.executor.Run(runCtx)
	// Stopping the executor closes state streams so Shutdown can drain them.
	s.httpServer.RegisterOnShutdown(stop)

	lifecycle := camera.NewLifecycle(runCtx)

	s.mu.Lock()
	s.services = &svcctx.Services{
		Registry:  s.registry,
		Holder:    s.holder,
		Camera:    s.repo,
		Provider:  s.provider,
		Lifecycle: lifecycle,
		Frames:    s.frames,
		Store:     s.store,
		Config:    s.configMgr,
		Home:      s.home,
		Logger:    s.logger,
	}
	s.mu.Unlock()

	if s.bindOnStart && len(s.provider.Devices()) > 0 {
		if err := s.holder.BindPreview(lifecycle.Start(), s.frames); err != nil {
			s.logger.Warn("preview bind failed", "error", err)
		}
	}

	inboxDone := make(chan struct{})
	if s.inbox != nil {
		go func() {
			defer close(inboxDone)
			if err := s.inbox.Run(runCtx); err != nil {
				s.logger.Error("inbox watcher stopped", "error", err)
			}
		}()
	} else {
		close(inboxDone)
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	s.shutdown(lifecycle, stop, inboxDone)
	return serveErr
}

// shutdown stops HTTP, cancels in-flight passes and releases the camera.
func (s *Server) shutdown(lifecycle *camera.Lifecycle, stop context.CancelFunc, inboxDone <-chan struct{}) {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if n := s.holder.Tracker().CancelAll(shutdownCtx); n > 0 {
		s.logger.Info("cancelled in-flight passes", "count", n)
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	lifecycle.Stop()
	s.holder.UnbindPreview()

	stop()
	<-inboxDone
	select {
	case <-s.executor.Stopped():
	case <-shutdownCtx.Done():
		s.logger.Warn("executor did not stop before timeout")
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.services = nil
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the recognizer registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Holder returns the view state holder.
func (s *Server) Holder() *viewstate.Holder {
	return s.holder
}

// Store returns the media store captures are written to.
func (s *Server) Store() *mediastore.Store {
	return s.store
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.currentServices(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until Start has wired the services.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.currentServices() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
