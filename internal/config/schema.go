package config

import "time"

// Config holds docscan configuration.
// Stored at: ~/.docscan/config.yaml
type Config struct {
	Camera      CameraCfg                `mapstructure:"camera" yaml:"camera"`
	Storage     StorageCfg               `mapstructure:"storage" yaml:"storage"`
	Recognizers map[string]RecognizerCfg `mapstructure:"recognizers" yaml:"recognizers"`
	Defaults    DefaultsCfg              `mapstructure:"defaults" yaml:"defaults"`
	Processing  ProcessingCfg            `mapstructure:"processing" yaml:"processing"`
	Inbox       InboxCfg                 `mapstructure:"inbox" yaml:"inbox"`
	Server      ServerCfg                `mapstructure:"server" yaml:"server"`
}

// CameraCfg configures the capture device and use cases.
type CameraCfg struct {
	Device          string   `mapstructure:"device" yaml:"device"`                       // "command", "file" or "none"
	Lens            string   `mapstructure:"lens" yaml:"lens"`                           // "back" or "front"
	Command         []string `mapstructure:"command" yaml:"command"`                     // still-capture command; {flash} and {aspect} are substituted
	File            string   `mapstructure:"file" yaml:"file"`                           // JPEG served by the file device
	Flash           string   `mapstructure:"flash" yaml:"flash"`                         // "auto", "on", "off"
	AspectRatio     string   `mapstructure:"aspect_ratio" yaml:"aspect_ratio"`           // "16:9" or "4:3"
	TargetRotation  int      `mapstructure:"target_rotation" yaml:"target_rotation"`     // degrees stamped into untagged captures
	Backpressure    string   `mapstructure:"backpressure" yaml:"backpressure"`           // "keep-only-latest" or "block-producer"
	FrameIntervalMs int      `mapstructure:"frame_interval_ms" yaml:"frame_interval_ms"` // preview period, 0 disables frames
	BindOnStart     bool     `mapstructure:"bind_on_start" yaml:"bind_on_start"`
}

// FrameInterval returns the preview period.
func (c CameraCfg) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// StorageCfg configures where captures go.
type StorageCfg struct {
	MediaDir     string `mapstructure:"media_dir" yaml:"media_dir"`         // defaults to ~/.docscan/media
	RelativePath string `mapstructure:"relative_path" yaml:"relative_path"` // capture folder inside the media dir
}

// RecognizerCfg configures a text recognizer.
type RecognizerCfg struct {
	Type      string   `mapstructure:"type" yaml:"type"`                 // "tesseract", "openai", "deepinfra", "mistral-ocr", "mock"
	Model     string   `mapstructure:"model" yaml:"model"`               // Model name (remote backends)
	APIKey    string   `mapstructure:"api_key" yaml:"api_key"`           // API key (supports ${ENV_VAR} syntax)
	BaseURL   string   `mapstructure:"base_url" yaml:"base_url"`         // Endpoint override
	Detail    string   `mapstructure:"detail" yaml:"detail"`             // "low", "high", "auto" (vision backends)
	MaxTokens int      `mapstructure:"max_tokens" yaml:"max_tokens"`     // Completion limit (vision backends)
	Languages []string `mapstructure:"languages" yaml:"languages"`       // Tesseract languages
	MockText  string   `mapstructure:"mock_text" yaml:"mock_text"`       // Text returned by the mock backend
	RateLimit float64  `mapstructure:"rate_limit" yaml:"rate_limit"`     // Requests per second
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default selections.
type DefaultsCfg struct {
	Recognizers []string `mapstructure:"recognizers" yaml:"recognizers"` // Ordered preference; first registered wins
}

// ProcessingCfg controls recognition passes.
type ProcessingCfg struct {
	RequireOrientation bool `mapstructure:"require_orientation" yaml:"require_orientation"` // skip images without EXIF orientation
	GuardSuperseded    bool `mapstructure:"guard_superseded" yaml:"guard_superseded"`       // newest intent wins
	NoticeDurationMs   int  `mapstructure:"notice_duration_ms" yaml:"notice_duration_ms"`
	TaskRetain         int  `mapstructure:"task_retain" yaml:"task_retain"` // finished tasks kept for the API
}

// NoticeDuration returns how long capture notices stay visible.
func (c ProcessingCfg) NoticeDuration() time.Duration {
	return time.Duration(c.NoticeDurationMs) * time.Millisecond
}

// InboxCfg configures the watched pick folder.
type InboxCfg struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`       // defaults to ~/.docscan/inbox
	Remove  bool   `mapstructure:"remove" yaml:"remove"` // delete files after their pass
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        string `mapstructure:"port" yaml:"port"`
	MaxUploadMB int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Camera: CameraCfg{
			Device:          "file",
			Lens:            "back",
			Flash:           "auto",
			AspectRatio:     "16:9",
			Backpressure:    "keep-only-latest",
			FrameIntervalMs: 1000,
			BindOnStart:     true,
		},
		Storage: StorageCfg{
			RelativePath: "Pictures/Doc-Scanner",
		},
		Recognizers: map[string]RecognizerCfg{
			"tesseract": {
				Type:      "tesseract",
				Languages: []string{"eng"},
				Enabled:   true,
			},
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				Detail:    "high",
				RateLimit: 8.0,
				Enabled:   true,
			},
			"mistral": {
				Type:      "mistral-ocr",
				APIKey:    "${MISTRAL_API_KEY}",
				RateLimit: 6.0,
				Enabled:   false,
			},
		},
		Defaults: DefaultsCfg{
			Recognizers: []string{"tesseract", "openai", "mistral"},
		},
		Processing: ProcessingCfg{
			RequireOrientation: true,
			GuardSuperseded:    true,
			NoticeDurationMs:   2000,
			TaskRetain:         50,
		},
		Server: ServerCfg{
			Host:        "127.0.0.1",
			Port:        "8080",
			MaxUploadMB: 32,
		},
	}
}

// GetRecognizer returns a recognizer config by name.
func (c *Config) GetRecognizer(name string) (RecognizerCfg, bool) {
	cfg, ok := c.Recognizers[name]
	return cfg, ok
}

// EnabledRecognizers returns all enabled recognizers.
func (c *Config) EnabledRecognizers() map[string]RecognizerCfg {
	result := make(map[string]RecognizerCfg)
	for name, cfg := range c.Recognizers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
