package mediastore

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
)

// ErrInvalidReference is returned for references this store cannot resolve.
var ErrInvalidReference = errors.New("invalid image reference")

// Reference is an opaque URI locating image bytes.
// Captured and picked images are both addressed as file:// URIs.
type Reference string

// FileReference returns the reference for a local path.
func FileReference(path string) Reference {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return Reference(u.String())
}

// Path returns the local filesystem path behind a file:// reference.
func (r Reference) Path() (string, error) {
	u, err := url.Parse(string(r))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if u.Scheme != "file" || u.Path == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, string(r))
	}
	return filepath.FromSlash(u.Path), nil
}

func (r Reference) String() string {
	return string(r)
}
