package providers

import (
	"context"
)

// Limited wraps a Recognizer with a token bucket sized from its
// RequestsPerSecond. Backends reporting 0 are passed through unlimited.
type Limited struct {
	Recognizer
	limiter *RateLimiter
}

// WithRateLimit returns rec wrapped in a limiter.
func WithRateLimit(rec Recognizer) Recognizer {
	rps := rec.RequestsPerSecond()
	if rps <= 0 {
		return rec
	}
	return &Limited{Recognizer: rec, limiter: NewRateLimiter(rps)}
}

// Recognize waits for a token, then calls the wrapped recognizer.
func (l *Limited) Recognize(ctx context.Context, image []byte) (*Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := l.Recognizer.Recognize(ctx, image)
	if rle, ok := IsRateLimitError(err); ok {
		l.limiter.Record429(rle.RetryAfter)
	}
	return res, err
}

// Status reports the limiter state.
func (l *Limited) Status() RateLimiterStatus {
	return l.limiter.Status()
}

// Unwrap returns the underlying recognizer.
func (l *Limited) Unwrap() Recognizer {
	return l.Recognizer
}
