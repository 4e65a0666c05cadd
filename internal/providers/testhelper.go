package providers

import (
	"os"
)

// TestConfig holds recognizer configurations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenAIAPIKey    string
	DeepInfraAPIKey string
	MistralAPIKey   string
}

// LoadTestConfig loads recognizer API keys from environment variables.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		DeepInfraAPIKey: os.Getenv("DEEPINFRA_API_KEY"),
		MistralAPIKey:   os.Getenv("MISTRAL_API_KEY"),
	}
}

// HasOpenAI returns true if an OpenAI API key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasDeepInfra returns true if a DeepInfra API key is configured.
func (c TestConfig) HasDeepInfra() bool {
	return c.DeepInfraAPIKey != ""
}

// HasMistral returns true if a Mistral API key is configured.
func (c TestConfig) HasMistral() bool {
	return c.MistralAPIKey != ""
}

// HasAnyRemote returns true if any remote recognizer is configured.
func (c TestConfig) HasAnyRemote() bool {
	return c.HasOpenAI() || c.HasDeepInfra() || c.HasMistral()
}

// NewMistralOCRClient creates a Mistral OCR client from test config.
// Returns nil if not configured.
func (c TestConfig) NewMistralOCRClient() *MistralOCRClient {
	if !c.HasMistral() {
		return nil
	}
	return NewMistralOCRClient(MistralOCRConfig{
		APIKey: c.MistralAPIKey,
	})
}

// NewOpenAIVisionClient creates an OpenAI vision client from test config.
// Returns nil if not configured.
func (c TestConfig) NewOpenAIVisionClient() *OpenAIVisionClient {
	if !c.HasOpenAI() {
		return nil
	}
	return NewOpenAIVisionClient(OpenAIVisionConfig{
		APIKey:     c.OpenAIAPIKey,
		Structured: true,
	})
}

// ToRegistryConfig converts test config to a RegistryConfig.
// The mock recognizer is always included; remote ones only with keys.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		Recognizers: map[string]RecognizerConfig{
			"mock": {Type: MockRecognizerName, MockText: "mock text", Enabled: true},
		},
	}

	if c.HasOpenAI() {
		cfg.Recognizers["openai"] = RecognizerConfig{
			Type:      OpenAIVisionName,
			APIKey:    c.OpenAIAPIKey,
			RateLimit: 8,
			Enabled:   true,
		}
	}
	if c.HasDeepInfra() {
		cfg.Recognizers["deepinfra"] = RecognizerConfig{
			Type:      DeepInfraVisionName,
			APIKey:    c.DeepInfraAPIKey,
			RateLimit: 5,
			Enabled:   true,
		}
	}
	if c.HasMistral() {
		cfg.Recognizers["mistral"] = RecognizerConfig{
			Type:      MistralOCRName,
			APIKey:    c.MistralAPIKey,
			RateLimit: 6,
			Enabled:   true,
		}
	}

	return cfg
}
