package orientation

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Apply returns img transformed so that it displays upright for tag o.
// Normal and undefined tags return img unchanged.
func Apply(img image.Image, o Orientation) image.Image {
	if o == Normal || !o.Valid() {
		return img
	}

	sr := img.Bounds()
	w, h := float64(sr.Dx()), float64(sr.Dy())

	var m f64.Aff3
	switch o {
	case FlipHorizontal:
		m = f64.Aff3{-1, 0, w, 0, 1, 0}
	case Rotate180:
		m = f64.Aff3{-1, 0, w, 0, -1, h}
	case FlipVertical:
		m = f64.Aff3{1, 0, 0, 0, -1, h}
	case Transpose:
		m = f64.Aff3{0, 1, 0, 1, 0, 0}
	case Rotate90:
		m = f64.Aff3{0, -1, h, 1, 0, 0}
	case Transverse:
		m = f64.Aff3{0, -1, h, -1, 0, w}
	case Rotate270:
		m = f64.Aff3{0, 1, 0, -1, 0, w}
	}

	// Matrices above assume a zero origin; fold the source offset in.
	minX, minY := float64(sr.Min.X), float64(sr.Min.Y)
	m[2] -= m[0]*minX + m[1]*minY
	m[5] -= m[3]*minX + m[4]*minY

	dw, dh := sr.Dx(), sr.Dy()
	if o.SwapsAxes() {
		dw, dh = dh, dw
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.NearestNeighbor.Transform(dst, m, img, sr, draw.Src, nil)
	return dst
}
