package providers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const MockRecognizerName = "mock"

// ErrMockFailure is returned by a MockRecognizer configured to fail.
var ErrMockFailure = errors.New("mock recognizer failure")

// MockRecognizer is a Recognizer for testing and for running without a
// real backend (`recognizers.mock.type: mock`).
type MockRecognizer struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	Text       string

	// Hook overrides all of the above when set.
	Hook func(ctx context.Context, image []byte) (*Result, error)

	RPS float64

	// State
	calls    atomic.Int64
	mu       sync.Mutex
	received [][]byte
}

// NewMockRecognizer creates a mock returning text.
func NewMockRecognizer(text string) *MockRecognizer {
	return &MockRecognizer{Text: text}
}

// Name returns the client identifier.
func (m *MockRecognizer) Name() string {
	return MockRecognizerName
}

// RequestsPerSecond returns the configured limit.
func (m *MockRecognizer) RequestsPerSecond() float64 {
	return m.RPS
}

// Recognize returns the configured text after Latency.
func (m *MockRecognizer) Recognize(ctx context.Context, image []byte) (*Result, error) {
	start := time.Now()
	m.calls.Add(1)
	m.mu.Lock()
	m.received = append(m.received, append([]byte(nil), image...))
	m.mu.Unlock()

	if m.Hook != nil {
		return m.Hook(ctx, image)
	}

	if m.Latency > 0 {
		timer := time.NewTimer(m.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if m.ShouldFail {
		return nil, ErrMockFailure
	}

	return &Result{
		Text:          m.Text,
		Provider:      MockRecognizerName,
		ExecutionTime: time.Since(start),
	}, nil
}

// Calls returns how many times Recognize was called.
func (m *MockRecognizer) Calls() int {
	return int(m.calls.Load())
}

// Received returns copies of the images passed to Recognize.
func (m *MockRecognizer) Received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received...)
}

var _ Recognizer = (*MockRecognizer)(nil)
