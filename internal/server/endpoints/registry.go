package endpoints

import (
	"github.com/jackzampolin/docscan/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	SwaggerSpecPath string
	MaxUploadBytes  int64
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	swagger := &SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath}
	eps := []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Scan intents
		&CaptureEndpoint{},
		&PickEndpoint{MaxUploadBytes: cfg.MaxUploadBytes},

		// Task endpoints
		&ListTasksEndpoint{},
		&GetTaskEndpoint{},
		&CancelTaskEndpoint{},

		// View state endpoints
		&GetStateEndpoint{},
		&StateEventsEndpoint{},
		&ClearStateEndpoint{},
		&StateTextEndpoint{},

		// Preview endpoints
		&BindPreviewEndpoint{},
		&UnbindPreviewEndpoint{},
		&PreviewFrameEndpoint{},

		// Capture endpoints
		&ListCapturesEndpoint{},
		&GetCaptureEndpoint{},
		&ExportCaptureEndpoint{},

		// Swagger/OpenAPI endpoints
		swagger,
		&SwaggerUIEndpoint{},

		// Scanner page (catch-all, must be last)
		&StaticEndpoint{},
	}
	swagger.Endpoints = eps
	return eps
}

// TaskCommands returns endpoints grouped under the "tasks" subcommand.
func TaskCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListTasksEndpoint{},
		&GetTaskEndpoint{},
		&CancelTaskEndpoint{},
	}
}

// StateCommands returns endpoints grouped under the "state" subcommand.
func StateCommands() []api.Endpoint {
	return []api.Endpoint{
		&GetStateEndpoint{},
		&StateEventsEndpoint{},
		&ClearStateEndpoint{},
		&StateTextEndpoint{},
	}
}

// PreviewCommands returns endpoints grouped under the "preview" subcommand.
func PreviewCommands() []api.Endpoint {
	return []api.Endpoint{
		&BindPreviewEndpoint{},
		&UnbindPreviewEndpoint{},
		&PreviewFrameEndpoint{},
	}
}

// CaptureCommands returns endpoints grouped under the "captures" subcommand.
func CaptureCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListCapturesEndpoint{},
		&GetCaptureEndpoint{},
		&ExportCaptureEndpoint{},
	}
}

// TopLevelCommands returns endpoints exposed directly under "api".
func TopLevelCommands() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},
		&CaptureEndpoint{},
		&PickEndpoint{},
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}
