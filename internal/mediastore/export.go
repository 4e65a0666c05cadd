package mediastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ExportPDF writes the referenced images into a new PDF at outPath, one
// page per image, and returns the resulting page count.
func (s *Store) ExportPDF(ctx context.Context, refs []Reference, outPath string) (int, error) {
	if len(refs) == 0 {
		return 0, fmt.Errorf("no images to export")
	}

	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		p, err := ref.Path()
		if err != nil {
			return 0, err
		}
		if _, err := os.Stat(p); err != nil {
			return 0, fmt.Errorf("image not found: %s", ref)
		}
		paths = append(paths, p)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}
	// ImportImagesFile appends to an existing file.
	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to replace %s: %w", outPath, err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ImportImagesFile(paths, outPath, pdfcpu.DefaultImportConfig(), conf); err != nil {
		return 0, fmt.Errorf("failed to build PDF: %w", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pageCount, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}

	s.logger.Info("exported PDF", "path", outPath, "pages", pageCount)
	return pageCount, nil
}
