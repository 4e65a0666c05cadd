package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"
)

// AnalysisStats summarize frames seen by a LumaAnalyzer.
type AnalysisStats struct {
	Frames      uint64    `json:"frames"`
	Dropped     uint64    `json:"dropped"`
	Failures    uint64    `json:"failures"`
	MeanLuma    float64   `json:"mean_luma"`
	LastFrameAt time.Time `json:"last_frame_at,omitempty"`
}

// LumaAnalyzer tracks the mean brightness of analysed frames. Clients use
// it to warn about under-exposed scans before capturing.
type LumaAnalyzer struct {
	logger *slog.Logger

	mu    sync.Mutex
	stats AnalysisStats
}

// NewLumaAnalyzer creates an analyzer.
func NewLumaAnalyzer(logger *slog.Logger) *LumaAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LumaAnalyzer{logger: logger.With("component", "analysis")}
}

// Analyze decodes f and records its mean luma in [0, 255].
func (a *LumaAnalyzer) Analyze(f Frame) {
	img, err := jpeg.Decode(bytes.NewReader(f.Data))
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.stats.Failures++
		a.logger.Debug("failed to decode frame", "seq", f.Seq, "error", err)
		return
	}
	a.stats.Frames++
	a.stats.MeanLuma = meanLuma(img)
	a.stats.LastFrameAt = f.Timestamp
}

// Stats returns a copy of the current statistics.
func (a *LumaAnalyzer) Stats() AnalysisStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// lumaSamples bounds the pixels visited per frame for non-YCbCr images.
const lumaSamples = 64

func meanLuma(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}

	if ycc, ok := img.(*image.YCbCr); ok {
		var sum, n uint64
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				sum += uint64(ycc.Y[ycc.YOffset(x, y)])
				n++
			}
		}
		return float64(sum) / float64(n)
	}

	stepX := max(b.Dx()/lumaSamples, 1)
	stepY := max(b.Dy()/lumaSamples, 1)
	var sum, n uint64
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			sum += uint64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			n++
		}
	}
	return float64(sum) / float64(n)
}
