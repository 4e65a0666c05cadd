package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIVisionName         = "openai"
	OpenAIVisionDefaultModel = "gpt-4o-mini"

	DeepInfraVisionName    = "deepinfra"
	DeepInfraBaseURL       = "https://api.deepinfra.com/v1/openai"
	DeepInfraDefaultModel  = "allenai/olmOCR-2-7B-1025"
	deepInfraDefaultRPS    = 5.0
	openAIVisionDefaultRPS = 8.0
)

const recognitionPrompt = `You are a document text recognizer. Transcribe all text visible in the image exactly as written, preserving line breaks and reading order. Do not summarize, translate or describe the image. If there is no text, return an empty string.

Respond with JSON: {"text": "<transcription>"}`

// recognitionSchema is the structured output contract for vision backends.
var recognitionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"text": {"type": "string"}
	},
	"required": ["text"],
	"additionalProperties": false
}`)

// OpenAIVisionConfig holds configuration for an OpenAI-compatible vision client.
type OpenAIVisionConfig struct {
	Name       string        // Registry name (default: "openai")
	APIKey     string
	Model      string        // default: gpt-4o-mini
	Detail     string        // "auto" (default), "low", "high"
	MaxTokens  int           // Max completion tokens (0 = backend default)
	Structured bool          // Use json_schema response format (OpenAI); otherwise json_object
	RateLimit  float64       // Requests per second
	MaxRetries int           // Retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (DeepInfra, tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIVisionClient implements Recognizer using chat completions with an
// image part. Works against OpenAI and OpenAI-compatible hosts like DeepInfra.
type OpenAIVisionClient struct {
	name       string
	apiKey     string
	model      string
	detail     string
	maxTokens  int
	structured bool
	rateLimit  float64
	baseURL    string
	client     openai.Client
}

// NewOpenAIVisionClient creates a new vision recognizer.
func NewOpenAIVisionClient(cfg OpenAIVisionConfig) *OpenAIVisionClient {
	if cfg.Name == "" {
		cfg.Name = OpenAIVisionName
	}
	if cfg.Model == "" {
		cfg.Model = OpenAIVisionDefaultModel
	}
	if cfg.Detail == "" {
		cfg.Detail = "auto"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = openAIVisionDefaultRPS
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIVisionClient{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		detail:     cfg.Detail,
		maxTokens:  cfg.MaxTokens,
		structured: cfg.Structured,
		rateLimit:  cfg.RateLimit,
		baseURL:    cfg.BaseURL,
		client:     openai.NewClient(opts...),
	}
}

// NewDeepInfraVisionClient creates a vision recognizer pointed at DeepInfra's
// OpenAI-compatible endpoint.
func NewDeepInfraVisionClient(cfg OpenAIVisionConfig) *OpenAIVisionClient {
	if cfg.Name == "" {
		cfg.Name = DeepInfraVisionName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DeepInfraBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DeepInfraDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = deepInfraDefaultRPS
	}
	cfg.Structured = false
	return NewOpenAIVisionClient(cfg)
}

// Name returns the provider identifier.
func (c *OpenAIVisionClient) Name() string {
	return c.name
}

// Model returns the configured model.
func (c *OpenAIVisionClient) Model() string {
	return c.model
}

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAIVisionClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// Recognize sends the image as a data URL and parses {"text": ...} from the reply.
func (c *OpenAIVisionClient) Recognize(ctx context.Context, image []byte) (*Result, error) {
	start := time.Now()
	if len(image) == 0 {
		return nil, fmt.Errorf("image is required")
	}

	dataURL := "data:" + detectImageMIME(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(recognitionPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: c.detail,
				}),
			}),
		},
		Temperature: openai.Float(0),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.maxTokens))
	}
	if c.structured {
		var schema map[string]any
		if err := json.Unmarshal(recognitionSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid recognition schema: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "recognized_text",
					Strict: openai.Bool(true),
					Schema: schema,
				},
			},
		}
	} else {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.name)
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("%s refused: %s", c.name, msg.Refusal)
	}

	text, err := decodeRecognizedText(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}

	return &Result{
		Text: text,
		Metadata: map[string]any{
			"model_used":        resp.Model,
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"finish_reason":     resp.Choices[0].FinishReason,
		},
		Provider:      c.name,
		ExecutionTime: time.Since(start),
	}, nil
}

func (c *OpenAIVisionClient) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("%s rate limited: %s", c.name, apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return fmt.Errorf("%s error (status %d): %s", c.name, apiErr.StatusCode, msg)
		}
		return fmt.Errorf("%s error (status %d)", c.name, apiErr.StatusCode)
	}
	return err
}

var _ Recognizer = (*OpenAIVisionClient)(nil)
