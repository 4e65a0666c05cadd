package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrRecognizerNotFound is returned when no recognizer is registered under a name.
var ErrRecognizerNotFound = errors.New("recognizer not found")

// Recognizer turns an upright still image into text.
// Implementations must respect ctx cancellation.
type Recognizer interface {
	// Name returns the backend identifier (e.g., "tesseract", "openai").
	Name() string

	// Recognize extracts text from an encoded image (PNG or JPEG).
	// Success with empty text is valid and means no text was found.
	Recognize(ctx context.Context, image []byte) (*Result, error)

	// RequestsPerSecond is the backend's rate limit (0 = unlimited).
	RequestsPerSecond() float64
}

// Result is the response from a recognizer.
type Result struct {
	Text string `json:"text"`

	// Metadata from the backend (model, dimensions, confidence, etc.)
	Metadata map[string]any `json:"metadata,omitempty"`

	Provider      string        `json:"provider"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// RateLimitError reports a 429 from a remote backend.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError unwraps err into a *RateLimitError.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// detectImageMIME returns the data-URL MIME type for encoded image bytes.
func detectImageMIME(image []byte) string {
	if len(image) >= 8 && string(image[1:4]) == "PNG" {
		return "image/png"
	}
	if len(image) >= 2 && image[0] == 0xFF && image[1] == 0xD8 {
		return "image/jpeg"
	}
	return "image/png"
}
