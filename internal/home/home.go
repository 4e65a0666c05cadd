package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the docscan home directory.
	DefaultDirName = ".docscan"

	// MediaDirName is the subdirectory backing the still-image media store.
	MediaDirName = "media"

	// InboxDirName is the subdirectory watched for picked images.
	InboxDirName = "inbox"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the docscan home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.docscan).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// MediaPath returns the root of the media store.
// Captures land under MediaPath()/<relative path>.
func (d *Dir) MediaPath() string {
	return filepath.Join(d.path, MediaDirName)
}

// InboxPath returns the default directory watched for picked images.
func (d *Dir) InboxPath() string {
	return filepath.Join(d.path, InboxDirName)
}

// UploadsPath returns the directory holding images uploaded for a single pass.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, "uploads")
}

// ExportsPath returns the directory for exported PDFs.
func (d *Dir) ExportsPath() string {
	return filepath.Join(d.path, "exports")
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.MediaPath(), d.UploadsPath(), d.ExportsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureInbox creates the inbox directory.
func (d *Dir) EnsureInbox() error {
	return os.MkdirAll(d.InboxPath(), 0o755)
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
