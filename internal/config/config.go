package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/docscan/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v         *viper.Viper
	logger    *slog.Logger
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// An empty cfgFile searches ./config.yaml and $HOME/.docscan/config.yaml.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		logger:    slog.Default(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger sets the logger used for reload errors.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	d := DefaultConfig()

	v.SetDefault("camera.device", d.Camera.Device)
	v.SetDefault("camera.lens", d.Camera.Lens)
	v.SetDefault("camera.command", d.Camera.Command)
	v.SetDefault("camera.file", d.Camera.File)
	v.SetDefault("camera.flash", d.Camera.Flash)
	v.SetDefault("camera.aspect_ratio", d.Camera.AspectRatio)
	v.SetDefault("camera.target_rotation", d.Camera.TargetRotation)
	v.SetDefault("camera.backpressure", d.Camera.Backpressure)
	v.SetDefault("camera.frame_interval_ms", d.Camera.FrameIntervalMs)
	v.SetDefault("camera.bind_on_start", d.Camera.BindOnStart)

	v.SetDefault("storage.media_dir", d.Storage.MediaDir)
	v.SetDefault("storage.relative_path", d.Storage.RelativePath)

	v.SetDefault("recognizers", d.Recognizers)
	v.SetDefault("defaults.recognizers", d.Defaults.Recognizers)

	v.SetDefault("processing.require_orientation", d.Processing.RequireOrientation)
	v.SetDefault("processing.guard_superseded", d.Processing.GuardSuperseded)
	v.SetDefault("processing.notice_duration_ms", d.Processing.NoticeDurationMs)
	v.SetDefault("processing.task_retain", d.Processing.TaskRetain)

	v.SetDefault("inbox.enabled", d.Inbox.Enabled)
	v.SetDefault("inbox.dir", d.Inbox.Dir)
	v.SetDefault("inbox.remove", d.Inbox.Remove)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)

	// Environment variables with DOCSCAN_ prefix, e.g. DOCSCAN_SERVER_PORT
	v.SetEnvPrefix("DOCSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.docscan")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile returns the file in use, or "" when running on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Invalid edits are
// logged and the previous config stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.mu.RLock()
			logger := cm.logger
			cm.mu.RUnlock()
			logger.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Camera.Device {
	case "command", "file", "none":
	default:
		return fmt.Errorf("camera.device: unknown device %q", c.Camera.Device)
	}
	if c.Camera.TargetRotation%90 != 0 {
		return fmt.Errorf("camera.target_rotation must be a multiple of 90, got %d", c.Camera.TargetRotation)
	}
	if c.Camera.FrameIntervalMs < 0 {
		return fmt.Errorf("camera.frame_interval_ms must not be negative")
	}
	for name, rec := range c.Recognizers {
		if rec.Type == "" {
			return fmt.Errorf("recognizers.%s: type is required", name)
		}
	}
	return nil
}

// ToRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Recognizers: make(map[string]providers.RecognizerConfig),
	}

	for name, rec := range c.Recognizers {
		cfg.Recognizers[name] = providers.RecognizerConfig{
			Type:      rec.Type,
			Model:     rec.Model,
			APIKey:    ResolveEnvVars(rec.APIKey),
			BaseURL:   ResolveEnvVars(rec.BaseURL),
			Detail:    rec.Detail,
			MaxTokens: rec.MaxTokens,
			Languages: rec.Languages,
			MockText:  rec.MockText,
			RateLimit: rec.RateLimit,
			Enabled:   rec.Enabled,
		}
	}

	return cfg
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# docscan configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENAI_API_KEY=xxx MISTRAL_API_KEY=xxx
# camera.device: "file" serves camera.file, "command" runs camera.command
# and reads one JPEG from its stdout, e.g.
#   command: ["libcamera-still", "-n", "-o", "-", "--flash", "{flash}"]

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
