package providers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMockRecognizer(t *testing.T) {
	t.Run("returns text", func(t *testing.T) {
		m := NewMockRecognizer("INVOICE #123")

		result, err := m.Recognize(context.Background(), []byte("img"))
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if result.Text != "INVOICE #123" {
			t.Errorf("Text = %q", result.Text)
		}
		if m.Calls() != 1 {
			t.Errorf("Calls() = %d, want 1", m.Calls())
		}
		if got := m.Received(); len(got) != 1 || string(got[0]) != "img" {
			t.Errorf("Received() = %q", got)
		}
	})

	t.Run("failure", func(t *testing.T) {
		m := NewMockRecognizer("")
		m.ShouldFail = true

		if _, err := m.Recognize(context.Background(), nil); !errors.Is(err, ErrMockFailure) {
			t.Errorf("expected ErrMockFailure, got %v", err)
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		m := NewMockRecognizer("x")
		m.Latency = 5 * time.Second

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		if _, err := m.Recognize(ctx, nil); err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("hook", func(t *testing.T) {
		m := NewMockRecognizer("ignored")
		m.Hook = func(ctx context.Context, image []byte) (*Result, error) {
			return &Result{Text: "hooked"}, nil
		}
		result, _ := m.Recognize(context.Background(), nil)
		if result.Text != "hooked" {
			t.Errorf("Text = %q, want hooked", result.Text)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows initial burst", func(t *testing.T) {
		limiter := NewRateLimiter(10)

		// Should allow 5 requests quickly
		start := time.Now()
		for i := 0; i < 5; i++ {
			if err := limiter.Wait(context.Background()); err != nil {
				t.Fatalf("request %d failed: %v", i, err)
			}
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("took too long: %v", elapsed)
		}
	})

	t.Run("try consume", func(t *testing.T) {
		limiter := NewRateLimiter(1)

		if !limiter.TryConsume() {
			t.Error("first TryConsume should succeed")
		}
		if limiter.TryConsume() {
			t.Error("second TryConsume should fail with an empty bucket")
		}
	})

	t.Run("fractional rate keeps one token", func(t *testing.T) {
		limiter := NewRateLimiter(0.2)
		if !limiter.TryConsume() {
			t.Error("sub-1 RPS limiter should still allow a first request")
		}
		if d := limiter.Status().TimeUntilToken; d < 4*time.Second {
			t.Errorf("TimeUntilToken = %v, want about 5s", d)
		}
	})

	t.Run("status", func(t *testing.T) {
		limiter := NewRateLimiter(60.0)

		status := limiter.Status()
		if status.RPS != 60.0 {
			t.Errorf("RPS = %f, want 60.0", status.RPS)
		}
		if status.TokensAvailable <= 0 {
			t.Error("expected positive tokens available")
		}
	})

	t.Run("record 429 drains bucket", func(t *testing.T) {
		limiter := NewRateLimiter(60)

		limiter.Record429(time.Second)

		status := limiter.Status()
		if status.Last429Time.IsZero() {
			t.Error("Last429Time should be set")
		}
		if limiter.TryConsume() {
			t.Error("bucket should be drained after 429")
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		limiter := NewRateLimiter(1)
		limiter.Wait(context.Background())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := limiter.Wait(ctx); err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("concurrent requests", func(t *testing.T) {
		limiter := NewRateLimiter(100)

		var wg sync.WaitGroup
		var failures atomic.Int32
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := limiter.Wait(context.Background()); err != nil {
					failures.Add(1)
				}
			}()
		}
		wg.Wait()

		if failures.Load() > 0 {
			t.Errorf("had %d errors", failures.Load())
		}
		if status := limiter.Status(); status.TotalConsumed != 10 {
			t.Errorf("TotalConsumed = %d, want 10", status.TotalConsumed)
		}
	})
}

func TestWithRateLimit(t *testing.T) {
	t.Run("unlimited passes through", func(t *testing.T) {
		m := NewMockRecognizer("x")
		if WithRateLimit(m) != Recognizer(m) {
			t.Error("0 RPS recognizer should not be wrapped")
		}
	})

	t.Run("records 429", func(t *testing.T) {
		m := NewMockRecognizer("x")
		m.RPS = 50
		m.Hook = func(ctx context.Context, image []byte) (*Result, error) {
			return nil, &RateLimitError{Message: "slow down", RetryAfter: time.Second}
		}
		rec := WithRateLimit(m)
		l, ok := rec.(*Limited)
		if !ok {
			t.Fatalf("expected *Limited, got %T", rec)
		}
		if _, err := rec.Recognize(context.Background(), nil); err == nil {
			t.Fatal("expected error")
		}
		if l.Status().Last429Time.IsZero() {
			t.Error("429 should be recorded on the limiter")
		}
		if l.Unwrap() != Recognizer(m) {
			t.Error("Unwrap should return the mock")
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Errorf("parseRetryAfter(2) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v", got)
	}
	future := time.Now().Add(10 * time.Second).UTC().Format(time.RFC1123)
	if got := parseRetryAfter(future); got <= 0 || got > 11*time.Second {
		t.Errorf("parseRetryAfter(date) = %v", got)
	}
}

// TestTestConfig verifies the test helper works correctly.
func TestTestConfig(t *testing.T) {
	cfg := LoadTestConfig()
	_ = cfg.HasAnyRemote()

	regCfg := cfg.ToRegistryConfig()
	if _, ok := regCfg.Recognizers["mock"]; !ok {
		t.Error("mock recognizer should always be configured")
	}
}
