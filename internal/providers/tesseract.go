//go:build tesseract

package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// TesseractAvailable reports whether this binary was built with Tesseract.
const TesseractAvailable = true

// TesseractClient implements Recognizer with a local Tesseract install.
// Each call uses a fresh gosseract client; they are not safe to share.
type TesseractClient struct {
	languages   []string
	pageSegMode int
	variables   map[string]string
	newClient   func() *gosseract.Client
}

// NewTesseractClient creates a Tesseract recognizer.
func NewTesseractClient(cfg TesseractConfig) (*TesseractClient, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractClient{
		languages:   langs,
		pageSegMode: cfg.PageSegMode,
		variables:   cfg.Variables,
		newClient:   gosseract.NewClient,
	}, nil
}

// Name returns the provider identifier.
func (c *TesseractClient) Name() string {
	return TesseractName
}

// RequestsPerSecond is 0: local recognition is not rate limited.
func (c *TesseractClient) RequestsPerSecond() float64 {
	return 0
}

// Recognize runs Tesseract on the image.
func (c *TesseractClient) Recognize(ctx context.Context, image []byte) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := c.newClient()
	if err := c.configure(client, image); err != nil {
		client.Close()
		return nil, err
	}

	// Text has no cancellation hook. It runs aside and owns the client from
	// here on, so a cancelled caller never closes it mid-call.
	type out struct {
		text    string
		version string
		err     error
	}
	done := make(chan out, 1)
	go func() {
		defer client.Close()
		text, err := client.Text()
		done <- out{text, client.Version(), err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("recognize text: %w", o.err)
		}
		return &Result{
			Text: strings.TrimSpace(o.text),
			Metadata: map[string]any{
				"languages": c.languages,
				"version":   o.version,
			},
			Provider:      TesseractName,
			ExecutionTime: time.Since(start),
		}, nil
	}
}

func (c *TesseractClient) configure(client *gosseract.Client, image []byte) error {
	if err := client.SetLanguage(c.languages...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}
	if c.pageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(c.pageSegMode)); err != nil {
			return fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	for k, v := range c.variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	return nil
}

var _ Recognizer = (*TesseractClient)(nil)
