// Package camera binds still-capture, preview and analysis use cases to a
// camera device for the lifetime of a context, and orchestrates the
// capture → store → recognize flow on top of it.
package camera

import (
	"fmt"
	"strings"
	"time"
)

// LensFacing selects a camera by the direction it faces.
type LensFacing string

const (
	LensBack  LensFacing = "back"
	LensFront LensFacing = "front"
)

// Selector picks the device a session binds to.
type Selector struct {
	LensFacing LensFacing
}

// DefaultBackCamera selects the back-facing camera.
var DefaultBackCamera = Selector{LensFacing: LensBack}

// FlashMode controls the flash during still capture.
type FlashMode string

const (
	FlashAuto FlashMode = "auto"
	FlashOn   FlashMode = "on"
	FlashOff  FlashMode = "off"
)

// AspectRatio is the target aspect ratio of captured and previewed frames.
type AspectRatio string

const (
	Ratio16x9 AspectRatio = "16:9"
	Ratio4x3  AspectRatio = "4:3"
)

// Backpressure decides what analysis does when frames arrive faster than
// the analyzer consumes them.
type Backpressure string

const (
	// KeepOnlyLatest drops the pending frame in favour of the newest one.
	KeepOnlyLatest Backpressure = "keep-only-latest"
	// BlockProducer queues frames and stalls the frame loop when full.
	BlockProducer Backpressure = "block-producer"
)

// DisplayName formats t as a capture name: yyyy-MM-dd-HH-mm-ss-SSS.
func DisplayName(t time.Time) string {
	return fmt.Sprintf("%s-%03d", t.Format("2006-01-02-15-04-05"), t.Nanosecond()/int(time.Millisecond))
}

// ParseLensFacing validates a lens facing name.
func ParseLensFacing(s string) (LensFacing, error) {
	switch f := LensFacing(strings.ToLower(s)); f {
	case LensBack, LensFront:
		return f, nil
	}
	return "", fmt.Errorf("unknown lens facing %q (want back or front)", s)
}

// ParseFlashMode validates a flash mode name.
func ParseFlashMode(s string) (FlashMode, error) {
	switch m := FlashMode(strings.ToLower(s)); m {
	case FlashAuto, FlashOn, FlashOff:
		return m, nil
	}
	return "", fmt.Errorf("unknown flash mode %q (want auto, on or off)", s)
}

// ParseAspectRatio validates an aspect ratio.
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch r := AspectRatio(s); r {
	case Ratio16x9, Ratio4x3:
		return r, nil
	}
	return "", fmt.Errorf("unknown aspect ratio %q (want 16:9 or 4:3)", s)
}

// ParseBackpressure validates a backpressure strategy.
func ParseBackpressure(s string) (Backpressure, error) {
	switch b := Backpressure(strings.ToLower(s)); b {
	case KeepOnlyLatest, BlockProducer:
		return b, nil
	}
	return "", fmt.Errorf("unknown backpressure strategy %q", s)
}
