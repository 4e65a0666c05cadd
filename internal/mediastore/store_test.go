package mediastore

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestReference(t *testing.T) {
	t.Run("file round trip", func(t *testing.T) {
		ref := FileReference("/tmp/scans/a b.jpg")
		if !strings.HasPrefix(ref.String(), "file://") {
			t.Fatalf("reference = %q, want file:// prefix", ref)
		}
		p, err := ref.Path()
		if err != nil {
			t.Fatalf("Path() error = %v", err)
		}
		if p != filepath.FromSlash("/tmp/scans/a b.jpg") {
			t.Errorf("Path() = %q", p)
		}
	})

	t.Run("rejects other schemes", func(t *testing.T) {
		for _, ref := range []Reference{"content://media/1", "", "https://example.com/a.jpg"} {
			if _, err := ref.Path(); !errors.Is(err, ErrInvalidReference) {
				t.Errorf("Path(%q) error = %v, want ErrInvalidReference", ref, err)
			}
		}
	})
}

func TestStore_Insert(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir(), nil)
	values := ContentValues{
		DisplayName:  "2024-01-02-03-04-05-006",
		MIMEType:     "image/jpeg",
		RelativePath: "Pictures/Doc-Scanner",
	}

	first, err := s.Insert(ctx, values, bytes.NewReader([]byte("one")))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	second, err := s.Insert(ctx, values, bytes.NewReader([]byte("two")))
	if err != nil {
		t.Fatalf("second Insert() error = %v", err)
	}
	if first == second {
		t.Fatal("colliding inserts should produce distinct references")
	}

	p, _ := second.Path()
	if filepath.Base(p) != "2024-01-02-03-04-05-006 (1).jpg" {
		t.Errorf("collision name = %q", filepath.Base(p))
	}
	if filepath.Dir(p) != filepath.Join(s.Root(), "Pictures", "Doc-Scanner") {
		t.Errorf("dir = %q", filepath.Dir(p))
	}

	rc, err := s.Open(ctx, first)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "one" {
		t.Errorf("content = %q, want one", data)
	}
}

func TestStore_InsertErrors(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir(), nil)

	tests := []struct {
		name   string
		values ContentValues
	}{
		{"missing name", ContentValues{MIMEType: "image/jpeg"}},
		{"bad mime", ContentValues{DisplayName: "a", MIMEType: "text/plain"}},
		{"escaping path", ContentValues{DisplayName: "a", MIMEType: "image/jpeg", RelativePath: "../out"}},
		{"separator in name", ContentValues{DisplayName: "a/b", MIMEType: "image/jpeg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Insert(ctx, tt.values, strings.NewReader("x")); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("cancelled context leaves no file", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Insert(cctx, ContentValues{DisplayName: "c", MIMEType: "image/jpeg"}, strings.NewReader("x"))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
		if _, err := os.Stat(filepath.Join(s.Root(), "c.jpg")); !os.IsNotExist(err) {
			t.Error("partial file should be removed")
		}
	})
}

func TestStore_ListFindRemove(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir(), nil)

	items, err := s.List("missing")
	if err != nil || len(items) != 0 {
		t.Fatalf("List(missing) = %v, %v; want empty", items, err)
	}

	ref, err := s.Insert(ctx, ContentValues{DisplayName: "scan", MIMEType: "image/png", RelativePath: "p"}, strings.NewReader("png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Root(), "p", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err = s.List("p")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 || items[0].Name != "scan" || items[0].MIMEType != "image/png" {
		t.Fatalf("List() = %+v", items)
	}

	item, err := s.Find("p", "scan")
	if err != nil || item.Reference != ref {
		t.Fatalf("Find() = %+v, %v", item, err)
	}
	if _, err := s.Find("p", "nope"); err == nil {
		t.Error("Find(nope) should fail")
	}

	if err := s.Remove(ref); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Remove(ref); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
}

func TestMIMEType(t *testing.T) {
	tests := map[string]string{
		"a.jpg":  "image/jpeg",
		"a.JPEG": "image/jpeg",
		"a.png":  "image/png",
		"a.tif":  "image/tiff",
		"a.webp": "image/webp",
		"a.txt":  "",
	}
	for name, want := range tests {
		if got := MIMEType(name); got != want {
			t.Errorf("MIMEType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestStore_ExportPDF(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping PDF export in short mode")
	}
	ctx := context.Background()
	s := New(t.TempDir(), nil)

	var refs []Reference
	for i := 0; i < 2; i++ {
		ref, err := s.Insert(ctx, ContentValues{DisplayName: "page", MIMEType: "image/jpeg"}, bytes.NewReader(jpegBytes(t)))
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, ref)
	}

	out := filepath.Join(t.TempDir(), "exports", "scan.pdf")
	pages, err := s.ExportPDF(ctx, refs, out)
	if err != nil {
		t.Fatalf("ExportPDF() error = %v", err)
	}
	if pages != 2 {
		t.Errorf("pages = %d, want 2", pages)
	}

	// Re-exporting replaces rather than appends.
	pages, err = s.ExportPDF(ctx, refs[:1], out)
	if err != nil {
		t.Fatalf("second ExportPDF() error = %v", err)
	}
	if pages != 1 {
		t.Errorf("pages = %d, want 1", pages)
	}

	if _, err := s.ExportPDF(ctx, nil, out); err == nil {
		t.Error("ExportPDF(nil) should fail")
	}
}
