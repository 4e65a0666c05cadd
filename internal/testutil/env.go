// Package testutil starts docscan servers against a temporary home, a
// file-backed camera and the mock recognizer.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// MockText is what the test recognizer returns for every image.
const MockText = "INVOICE #123"

// ServerConfig returns configuration values for creating a test server.
// This avoids importing the server package directly.
type ServerConfig struct {
	Host       string
	Port       string
	HomeDir    string
	MediaDir   string
	ConfigFile string
	CameraFile string
	Logger     *slog.Logger
}

// NewServerConfig creates a home directory, a camera JPEG and a config file
// wired to the mock recognizer, on a free port.
func NewServerConfig(t *testing.T) ServerConfig {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	tempDir := t.TempDir()

	httpPort, err := FindFreePort()
	if err != nil {
		t.Fatalf("failed to find free port for HTTP: %v", err)
	}

	cfg := ServerConfig{
		Host:       "127.0.0.1",
		Port:       httpPort,
		HomeDir:    filepath.Join(tempDir, "home"),
		MediaDir:   filepath.Join(tempDir, "media"),
		ConfigFile: filepath.Join(tempDir, "config.yaml"),
		CameraFile: filepath.Join(tempDir, "camera.jpg"),
		Logger:     logger,
	}

	if err := os.WriteFile(cfg.CameraFile, JPEG(t, 64, 48), 0o644); err != nil {
		t.Fatalf("failed to write camera file: %v", err)
	}
	config := fmt.Sprintf(`camera:
  device: file
  file: %q
  frame_interval_ms: 50
  bind_on_start: true
storage:
  media_dir: %q
recognizers:
  mock:
    type: mock
    mock_text: %q
    enabled: true
defaults:
  recognizers: [mock]
processing:
  notice_duration_ms: 200
`, cfg.CameraFile, cfg.MediaDir, MockText)
	if err := os.WriteFile(cfg.ConfigFile, []byte(config), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return cfg
}

// URL returns the server URL for the given config.
func (c ServerConfig) URL() string {
	return fmt.Sprintf("http://%s:%s", c.Host, c.Port)
}

// JPEG encodes a w×h test page: light background with a dark band.
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := uint8(230)
			if y > h/3 && y < h/2 {
				c = 20
			}
			img.SetGray(x, y, color.Gray{Y: c})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// WaitForServer polls /ready until the server reports ready.
func WaitForServer(ctx context.Context, url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/ready", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	return fmt.Errorf("server not ready after %v", timeout)
}

// WaitForShutdown waits for a channel to receive a value or timeout.
func WaitForShutdown(done <-chan error, timeout time.Duration) error {
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for shutdown")
	}
}

// FindFreePort finds an available TCP port and returns it as a string.
func FindFreePort() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer listener.Close()
	return fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port), nil
}
