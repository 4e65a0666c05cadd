package server

import (
	"fmt"

	"github.com/jackzampolin/docscan/internal/camera"
	"github.com/jackzampolin/docscan/internal/config"
)

type cameraOptions struct {
	lens         camera.LensFacing
	flash        camera.FlashMode
	aspect       camera.AspectRatio
	backpressure camera.Backpressure
}

func parseCameraOptions(c config.CameraCfg) (cameraOptions, error) {
	var (
		opts cameraOptions
		err  error
	)
	if opts.lens, err = camera.ParseLensFacing(c.Lens); err != nil {
		return opts, fmt.Errorf("camera.lens: %w", err)
	}
	if opts.flash, err = camera.ParseFlashMode(c.Flash); err != nil {
		return opts, fmt.Errorf("camera.flash: %w", err)
	}
	if opts.aspect, err = camera.ParseAspectRatio(c.AspectRatio); err != nil {
		return opts, fmt.Errorf("camera.aspect_ratio: %w", err)
	}
	if opts.backpressure, err = camera.ParseBackpressure(c.Backpressure); err != nil {
		return opts, fmt.Errorf("camera.backpressure: %w", err)
	}
	return opts, nil
}

// devicesFromConfig builds the capture devices. A file device without a
// path yields no device, so binding reports no camera.
func devicesFromConfig(c config.CameraCfg, lens camera.LensFacing) ([]camera.Device, error) {
	switch c.Device {
	case "", "none":
		return nil, nil
	case "file":
		if c.File == "" {
			return nil, nil
		}
		return []camera.Device{&camera.FileDevice{Lens: lens, Path: c.File}}, nil
	case "command":
		if len(c.Command) == 0 {
			return nil, fmt.Errorf("camera.command is required for the command device")
		}
		return []camera.Device{&camera.CommandDevice{Lens: lens, Command: c.Command}}, nil
	}
	return nil, fmt.Errorf("unknown camera device %q", c.Device)
}
