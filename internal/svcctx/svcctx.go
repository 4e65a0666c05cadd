// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/docscan/internal/camera"
	"github.com/jackzampolin/docscan/internal/config"
	"github.com/jackzampolin/docscan/internal/home"
	"github.com/jackzampolin/docscan/internal/mediastore"
	"github.com/jackzampolin/docscan/internal/providers"
	"github.com/jackzampolin/docscan/internal/viewstate"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Registry  *providers.Registry
	Holder    *viewstate.Holder
	Camera    *camera.Repository
	Provider  *camera.Provider
	Lifecycle *camera.Lifecycle
	Frames    *camera.FrameBuffer
	Store     *mediastore.Store
	Config    *config.Manager
	Home      *home.Dir
	Logger    *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// RegistryFrom extracts the recognizer registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// HolderFrom extracts the view state holder from context.
func HolderFrom(ctx context.Context) *viewstate.Holder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Holder
	}
	return nil
}

// CameraFrom extracts the camera repository from context.
func CameraFrom(ctx context.Context) *camera.Repository {
	if s := ServicesFrom(ctx); s != nil {
		return s.Camera
	}
	return nil
}

// ProviderFrom extracts the camera session provider from context.
func ProviderFrom(ctx context.Context) *camera.Provider {
	if s := ServicesFrom(ctx); s != nil {
		return s.Provider
	}
	return nil
}

// LifecycleFrom extracts the preview lifecycle from context.
func LifecycleFrom(ctx context.Context) *camera.Lifecycle {
	if s := ServicesFrom(ctx); s != nil {
		return s.Lifecycle
	}
	return nil
}

// FramesFrom extracts the preview frame buffer from context.
func FramesFrom(ctx context.Context) *camera.FrameBuffer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Frames
	}
	return nil
}

// StoreFrom extracts the media store from context.
func StoreFrom(ctx context.Context) *mediastore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
