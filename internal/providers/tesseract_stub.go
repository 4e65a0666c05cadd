//go:build !tesseract

package providers

import (
	"context"
	"errors"
)

// TesseractAvailable reports whether this binary was built with Tesseract.
const TesseractAvailable = false

// ErrTesseractUnavailable is returned when the binary lacks Tesseract support.
var ErrTesseractUnavailable = errors.New("tesseract not available: rebuild with -tags tesseract")

// TesseractClient is a stub for builds without Tesseract/CGO support.
type TesseractClient struct {
	languages []string
}

// NewTesseractClient reports that Tesseract is unavailable.
func NewTesseractClient(cfg TesseractConfig) (*TesseractClient, error) {
	return nil, ErrTesseractUnavailable
}

func (c *TesseractClient) Name() string {
	return TesseractName
}

func (c *TesseractClient) RequestsPerSecond() float64 {
	return 0
}

func (c *TesseractClient) Recognize(ctx context.Context, image []byte) (*Result, error) {
	return nil, ErrTesseractUnavailable
}

var _ Recognizer = (*TesseractClient)(nil)
