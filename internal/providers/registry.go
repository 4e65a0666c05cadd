package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the configured recognizers by name.
// It supports config-driven instantiation, hot-reload, and thread-safe access.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[string]Recognizer
	configs     map[string]RecognizerConfig
	logger      *slog.Logger
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[string]Recognizer),
		configs:     make(map[string]RecognizerConfig),
		logger:      slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a recognizer by name. Rate limiting is applied from its
// RequestsPerSecond.
func (r *Registry) Register(name string, rec Recognizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = WithRateLimit(rec)
	delete(r.configs, name)
	if r.logger != nil {
		r.logger.Info("registered recognizer", "name", name, "type", rec.Name())
	}
}

// Unregister removes a recognizer by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recognizers, name)
	delete(r.configs, name)
	if r.logger != nil {
		r.logger.Info("unregistered recognizer", "name", name)
	}
}

// Get returns a recognizer by name.
func (r *Registry) Get(name string) (Recognizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recognizers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecognizerNotFound, name)
	}
	return rec, nil
}

// Has checks if a recognizer is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.recognizers[name]
	return ok
}

// List returns all registered recognizer names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.recognizers))
	for name := range r.recognizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preferred returns the first registered recognizer named in order. With an
// empty order it falls back to the first registered name.
func (r *Registry) Preferred(order []string) (Recognizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range order {
		if rec, ok := r.recognizers[name]; ok {
			return rec, nil
		}
	}
	if len(order) == 0 && len(r.recognizers) > 0 {
		names := make([]string, 0, len(r.recognizers))
		for name := range r.recognizers {
			names = append(names, name)
		}
		sort.Strings(names)
		return r.recognizers[names[0]], nil
	}
	return nil, fmt.Errorf("%w: none of %v is registered", ErrRecognizerNotFound, order)
}

// Status reports each recognizer's type and, when limited, its limiter state.
func (r *Registry) Status() map[string]RecognizerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RecognizerStatus, len(r.recognizers))
	for name, rec := range r.recognizers {
		st := RecognizerStatus{Type: rec.Name()}
		if l, ok := rec.(*Limited); ok {
			ls := l.Status()
			st.RateLimit = &ls
		}
		out[name] = st
	}
	return out
}

// RecognizerStatus is the per-recognizer entry in Status.
type RecognizerStatus struct {
	Type      string             `json:"type"`
	RateLimit *RateLimiterStatus `json:"rate_limit,omitempty"`
}

// RegistryConfig defines the recognizers to instantiate from config.
type RegistryConfig struct {
	Recognizers map[string]RecognizerConfig
}

// RecognizerConfig matches config.RecognizerCfg with a resolved API key.
type RecognizerConfig struct {
	Type      string   // "tesseract", "openai", "deepinfra", "mistral-ocr", "mock"
	Model     string   // Model name (openai, deepinfra, mistral-ocr)
	APIKey    string   // Resolved API key
	BaseURL   string   // Optional endpoint override
	Detail    string   // Image detail for vision backends
	MaxTokens int      // Max completion tokens for vision backends
	Languages []string // Tesseract languages
	MockText  string   // Fixed text returned by the mock backend
	RateLimit float64  // Requests per second
	Enabled   bool
}

// requiresKey reports whether a backend type needs an API key.
func (c RecognizerConfig) requiresKey() bool {
	switch c.Type {
	case TesseractName, MockRecognizerName:
		return false
	}
	return true
}

// NewRegistryFromConfig creates a registry with recognizers based on configuration.
// Only enabled recognizers with valid keys are registered.
func NewRegistryFromConfig(cfg RegistryConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Recognizers that are no longer configured are unregistered; those with
// changed settings are recreated.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)

	for name, recCfg := range cfg.Recognizers {
		if !recCfg.Enabled || (recCfg.requiresKey() && recCfg.APIKey == "") {
			continue
		}
		want[name] = true

		existing, hasExisting := r.configs[name]
		if hasExisting && !needsUpdate(existing, recCfg) {
			continue
		}

		rec, err := createRecognizer(recCfg)
		if err != nil {
			want[name] = false
			if r.logger != nil {
				r.logger.Warn("recognizer unavailable", "name", name, "type", recCfg.Type, "error", err)
			}
			continue
		}
		r.recognizers[name] = WithRateLimit(rec)
		r.configs[name] = recCfg
		if r.logger != nil {
			if hasExisting {
				r.logger.Info("updated recognizer", "name", name, "type", recCfg.Type)
			} else {
				r.logger.Info("registered recognizer", "name", name, "type", recCfg.Type)
			}
		}
	}

	// Remove config-driven recognizers that are no longer configured.
	// Manually registered ones have no config entry and are kept.
	for name := range r.configs {
		if !want[name] {
			delete(r.recognizers, name)
			delete(r.configs, name)
			if r.logger != nil {
				r.logger.Info("unregistered recognizer", "name", name)
			}
		}
	}
}

// createRecognizer creates a recognizer based on backend type.
func createRecognizer(cfg RecognizerConfig) (Recognizer, error) {
	switch cfg.Type {
	case TesseractName:
		return NewTesseractClient(TesseractConfig{Languages: cfg.Languages})
	case OpenAIVisionName:
		return NewOpenAIVisionClient(OpenAIVisionConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Detail:     cfg.Detail,
			MaxTokens:  cfg.MaxTokens,
			Structured: true,
			RateLimit:  cfg.RateLimit,
		}), nil
	case DeepInfraVisionName:
		return NewDeepInfraVisionClient(OpenAIVisionConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Detail:    cfg.Detail,
			MaxTokens: cfg.MaxTokens,
			RateLimit: cfg.RateLimit,
		}), nil
	case MistralOCRName:
		return NewMistralOCRClient(MistralOCRConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			RateLimit: cfg.RateLimit,
		}), nil
	case MockRecognizerName:
		m := NewMockRecognizer(cfg.MockText)
		m.RPS = cfg.RateLimit
		return m, nil
	default:
		return nil, fmt.Errorf("unknown recognizer type: %q", cfg.Type)
	}
}

// needsUpdate checks if a recognizer needs to be recreated.
func needsUpdate(old, cfg RecognizerConfig) bool {
	if old.Type != cfg.Type ||
		old.Model != cfg.Model ||
		old.APIKey != cfg.APIKey ||
		old.BaseURL != cfg.BaseURL ||
		old.Detail != cfg.Detail ||
		old.MaxTokens != cfg.MaxTokens ||
		old.MockText != cfg.MockText ||
		old.RateLimit != cfg.RateLimit {
		return true
	}
	if len(old.Languages) != len(cfg.Languages) {
		return true
	}
	for i := range old.Languages {
		if old.Languages[i] != cfg.Languages[i] {
			return true
		}
	}
	return false
}
