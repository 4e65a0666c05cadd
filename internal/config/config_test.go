package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v2"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Camera.Flash != "auto" || cfg.Camera.AspectRatio != "16:9" || cfg.Camera.Backpressure != "keep-only-latest" {
		t.Errorf("camera defaults = %+v", cfg.Camera)
	}
	if cfg.Storage.RelativePath != "Pictures/Doc-Scanner" {
		t.Errorf("relative path = %q", cfg.Storage.RelativePath)
	}
	if !cfg.Processing.RequireOrientation || !cfg.Processing.GuardSuperseded {
		t.Error("expected orientation requirement and superseded guard on by default")
	}
	if cfg.Processing.NoticeDuration() != 2*time.Second {
		t.Errorf("notice duration = %v, want 2s", cfg.Processing.NoticeDuration())
	}
	if cfg.Recognizers["openai"].APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected openai API key placeholder")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ToRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-123")

	cfg := &Config{
		Recognizers: map[string]RecognizerCfg{
			"openai": {Type: "openai", APIKey: "${TEST_OPENAI_KEY}", Model: "gpt-4o", RateLimit: 2, Enabled: true},
			"local":  {Type: "tesseract", Languages: []string{"eng", "deu"}, Enabled: false},
		},
	}

	reg := cfg.ToRegistryConfig()
	if got := reg.Recognizers["openai"]; got.APIKey != "sk-123" || got.Model != "gpt-4o" || got.RateLimit != 2 || !got.Enabled {
		t.Errorf("openai = %+v", got)
	}
	if got := reg.Recognizers["local"]; got.Enabled || len(got.Languages) != 2 {
		t.Errorf("local = %+v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown device", func(c *Config) { c.Camera.Device = "usb" }, "camera.device"},
		{"odd rotation", func(c *Config) { c.Camera.TargetRotation = 45 }, "target_rotation"},
		{"negative interval", func(c *Config) { c.Camera.FrameIntervalMs = -1 }, "frame_interval_ms"},
		{"recognizer without type", func(c *Config) { c.Recognizers["x"] = RecognizerCfg{} }, "recognizers.x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
camera:
  flash: "off"
recognizers:
  fake:
    type: mock
    mock_text: "hello"
    enabled: true
`)
		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Camera.Flash != "off" {
			t.Errorf("expected flash off, got %s", cfg.Camera.Flash)
		}
		// Unset keys in a partially specified section keep their defaults.
		if cfg.Camera.AspectRatio != "16:9" {
			t.Errorf("expected default aspect ratio, got %q", cfg.Camera.AspectRatio)
		}
		if cfg.Recognizers["fake"].MockText != "hello" {
			t.Errorf("expected mock recognizer, got %+v", cfg.Recognizers)
		}
		if mgr.ConfigFile() != configFile {
			t.Errorf("ConfigFile() = %q", mgr.ConfigFile())
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("DOCSCAN_SERVER_PORT", "9999")
		mgr, err := NewManager(writeConfig(t, "server:\n  host: 0.0.0.0\n"))
		if err != nil {
			t.Fatal(err)
		}
		if got := mgr.Get().Server; got.Port != "9999" || got.Host != "0.0.0.0" {
			t.Errorf("server = %+v", got)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		if _, err := NewManager(writeConfig(t, "camera:\n  device: usb\n")); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("rejects unreadable yaml", func(t *testing.T) {
		if _, err := NewManager(writeConfig(t, "camera: [unclosed\n")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "camera:\n  flash: auto\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "camera:\n  flash: auto\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Camera.Flash
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, `
processing:
  guard_superseded: true
`)
	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if !mgr.Get().Processing.GuardSuperseded {
		t.Fatal("initial value mismatch")
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Bool
	lastValue.Store(true)

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Processing.GuardSuperseded)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	newContent := `
processing:
  guard_superseded: false
`
	if err := os.WriteFile(configFile, []byte(newContent), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 && !lastValue.Load() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if mgr.Get().Processing.GuardSuperseded {
		t.Error("config not updated")
	}
	if lastValue.Load() {
		t.Error("callback received stale value")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# docscan configuration") {
		t.Error("missing header")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config does not parse: %v", err)
	}
	if cfg.Camera.AspectRatio != "16:9" || cfg.Recognizers["tesseract"].Type != "tesseract" {
		t.Errorf("round-tripped config = %+v", cfg)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager(default file) error = %v", err)
	}
	if mgr.Get().Server.Port != "8080" {
		t.Errorf("port = %q", mgr.Get().Server.Port)
	}
}
