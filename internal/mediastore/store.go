// Package mediastore is the still-image storage sink. Images are written
// under a root directory by display name, MIME type and relative path, and
// are addressed afterwards by Reference.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ContentValues describe an image being inserted.
type ContentValues struct {
	DisplayName  string
	MIMEType     string
	RelativePath string // optional, slash separated
}

// Item is a stored image.
type Item struct {
	Name      string    `json:"name"`
	Reference Reference `json:"reference"`
	MIMEType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	ModTime   time.Time `json:"mod_time"`
}

// Resolver opens image references for reading.
type Resolver interface {
	Open(ctx context.Context, ref Reference) (io.ReadCloser, error)
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/tiff": ".tiff",
}

// maxCollisions bounds the " (n)" suffix search.
const maxCollisions = 1000

// Store is a directory-backed image store.
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates a store rooted at root.
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:   root,
		logger: logger.With("component", "mediastore"),
	}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// dir resolves a relative path inside the root.
func (s *Store) dir(relativePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relativePath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("relative path escapes store: %q", relativePath)
	}
	return filepath.Join(s.root, clean), nil
}

// Insert writes the stream from r as a new image and returns its reference.
// An existing name gets a " (n)" suffix rather than being overwritten.
func (s *Store) Insert(ctx context.Context, values ContentValues, r io.Reader) (Reference, error) {
	if values.DisplayName == "" {
		return "", fmt.Errorf("display name is required")
	}
	if strings.ContainsAny(values.DisplayName, `/\`) {
		return "", fmt.Errorf("display name must not contain path separators: %q", values.DisplayName)
	}
	ext, ok := extensions[values.MIMEType]
	if !ok {
		return "", fmt.Errorf("unsupported MIME type: %q", values.MIMEType)
	}
	dir, err := s.dir(values.RelativePath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	f, path, err := createUnique(dir, values.DisplayName, ext)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	ref := FileReference(path)
	s.logger.Debug("image stored", "reference", ref, "mime", values.MIMEType)
	return ref, nil
}

func createUnique(dir, name, ext string) (*os.File, string, error) {
	for i := 0; i < maxCollisions; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)", name, i)
		}
		path := filepath.Join(dir, candidate+ext)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("too many images named %q", name)
}

// Open returns a read handle for ref. The caller must close it.
// References outside the store root are allowed so picked images resolve too.
func (s *Store) Open(ctx context.Context, ref Reference) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := ref.Path()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", ref, err)
	}
	return f, nil
}

// Remove deletes the image behind ref.
func (s *Store) Remove(ref Reference) error {
	path, err := ref.Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", ref, err)
	}
	return nil
}

// List returns images under relativePath, newest first.
func (s *Store) List(relativePath string) ([]Item, error) {
	dir, err := s.dir(relativePath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		mime := MIMEType(e.Name())
		if mime == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, Item{
			Name:      strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Reference: FileReference(filepath.Join(dir, e.Name())),
			MIMEType:  mime,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ModTime.After(items[j].ModTime)
	})
	return items, nil
}

// Find returns the image with the given display name under relativePath.
func (s *Store) Find(relativePath, name string) (*Item, error) {
	items, err := s.List(relativePath)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Name == name {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("image not found: %s", name)
}

// MIMEType returns the image MIME type for a file name, or "" if unknown.
func MIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if ext == ".tif" {
		ext = ".tiff"
	}
	for mime, e := range extensions {
		if e == ext {
			return mime
		}
	}
	return ""
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
