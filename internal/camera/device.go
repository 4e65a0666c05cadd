package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNoCamera is returned when no device matches a selector.
var ErrNoCamera = errors.New("no camera matches selector")

// Settings are applied to a single device capture.
type Settings struct {
	Flash  FlashMode
	Aspect AspectRatio
}

// Device produces JPEG frames.
type Device interface {
	Name() string
	Facing() LensFacing
	Capture(ctx context.Context, s Settings) ([]byte, error)
}

var jpegSOI = []byte{0xFF, 0xD8}

// CommandDevice runs an external still-capture command that writes one
// JPEG to stdout. Arguments may contain {flash} and {aspect} placeholders.
type CommandDevice struct {
	DeviceName string
	Lens       LensFacing
	Command    []string
}

// Name returns the device name.
func (d *CommandDevice) Name() string {
	if d.DeviceName != "" {
		return d.DeviceName
	}
	if len(d.Command) > 0 {
		return d.Command[0]
	}
	return "command"
}

// Facing returns the configured lens facing.
func (d *CommandDevice) Facing() LensFacing {
	return d.Lens
}

// Capture runs the command and returns its stdout.
func (d *CommandDevice) Capture(ctx context.Context, s Settings) ([]byte, error) {
	if len(d.Command) == 0 {
		return nil, fmt.Errorf("camera %s: no capture command configured", d.Name())
	}
	r := strings.NewReplacer("{flash}", string(s.Flash), "{aspect}", string(s.Aspect))
	args := make([]string, len(d.Command)-1)
	for i, a := range d.Command[1:] {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, d.Command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("capture command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	data := stdout.Bytes()
	if !bytes.HasPrefix(data, jpegSOI) {
		return nil, fmt.Errorf("capture command did not produce a JPEG (%d bytes)", len(data))
	}
	return data, nil
}

// FileDevice serves a fixed JPEG file, re-read on every capture.
type FileDevice struct {
	DeviceName string
	Lens       LensFacing
	Path       string
}

// Name returns the device name.
func (d *FileDevice) Name() string {
	if d.DeviceName != "" {
		return d.DeviceName
	}
	return "file:" + d.Path
}

// Facing returns the configured lens facing.
func (d *FileDevice) Facing() LensFacing {
	return d.Lens
}

// Capture returns the file contents.
func (d *FileDevice) Capture(ctx context.Context, _ Settings) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera file: %w", err)
	}
	if !bytes.HasPrefix(data, jpegSOI) {
		return nil, fmt.Errorf("camera file %s is not a JPEG", d.Path)
	}
	return data, nil
}
