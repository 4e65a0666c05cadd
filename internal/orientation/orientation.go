// Package orientation reads, stamps and applies EXIF orientation for still
// images. Recognition only runs on images that carry an orientation tag, so
// capture devices that omit it get one stamped at capture time.
package orientation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Orientation is the EXIF orientation tag value (1-8).
type Orientation int

const (
	Normal          Orientation = 1
	FlipHorizontal  Orientation = 2
	Rotate180       Orientation = 3
	FlipVertical    Orientation = 4
	Transpose       Orientation = 5
	Rotate90        Orientation = 6
	Transverse      Orientation = 7
	Rotate270       Orientation = 8
)

const orientationTag = 0x0112

// ErrNotJPEG is returned when stamping a tag into non-JPEG data.
var ErrNotJPEG = errors.New("not a JPEG stream")

// Valid reports whether o is a defined EXIF orientation.
func (o Orientation) Valid() bool {
	return o >= Normal && o <= Rotate270
}

// SwapsAxes reports whether applying o exchanges width and height.
func (o Orientation) SwapsAxes() bool {
	return o >= Transpose && o <= Rotate270
}

func (o Orientation) String() string {
	switch o {
	case Normal:
		return "normal"
	case FlipHorizontal:
		return "flip-horizontal"
	case Rotate180:
		return "rotate-180"
	case FlipVertical:
		return "flip-vertical"
	case Transpose:
		return "transpose"
	case Rotate90:
		return "rotate-90"
	case Transverse:
		return "transverse"
	case Rotate270:
		return "rotate-270"
	}
	return fmt.Sprintf("undefined(%d)", int(o))
}

// FromRotation maps a clockwise display rotation in degrees to the tag a
// capture pipeline would write for it.
func FromRotation(degrees int) (Orientation, error) {
	switch ((degrees % 360) + 360) % 360 {
	case 0:
		return Normal, nil
	case 90:
		return Rotate90, nil
	case 180:
		return Rotate180, nil
	case 270:
		return Rotate270, nil
	}
	return 0, fmt.Errorf("rotation must be a multiple of 90, got %d", degrees)
}

// Read returns the stored orientation tag. ok is false when the data has no
// EXIF block or the block has no orientation entry.
func Read(data []byte) (o Orientation, ok bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return 0, false
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil || !Orientation(v).Valid() {
		return 0, false
	}
	return Orientation(v), true
}

// Inject returns a copy of the JPEG in data with an APP1 EXIF segment holding
// only the orientation tag. The segment is placed directly after SOI so that
// readers find it before any existing EXIF block.
func Inject(data []byte, o Orientation) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, ErrNotJPEG
	}
	if !o.Valid() {
		return nil, fmt.Errorf("invalid orientation %d", int(o))
	}

	// Big-endian TIFF with a single IFD0 entry.
	tiff := make([]byte, 26)
	copy(tiff[0:4], []byte{'M', 'M', 0x00, 0x2A})
	binary.BigEndian.PutUint32(tiff[4:8], 8)
	binary.BigEndian.PutUint16(tiff[8:10], 1)
	binary.BigEndian.PutUint16(tiff[10:12], orientationTag)
	binary.BigEndian.PutUint16(tiff[12:14], 3) // SHORT
	binary.BigEndian.PutUint32(tiff[14:18], 1)
	binary.BigEndian.PutUint16(tiff[18:20], uint16(o))
	// tiff[20:22] padding, tiff[22:26] next IFD offset = 0

	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := make([]byte, 4, 4+len(payload))
	seg[0], seg[1] = 0xFF, 0xE1
	binary.BigEndian.PutUint16(seg[2:4], uint16(2+len(payload)))
	seg = append(seg, payload...)

	out := make([]byte, 0, len(data)+len(seg))
	out = append(out, data[:2]...)
	out = append(out, seg...)
	out = append(out, data[2:]...)
	return out, nil
}

// Decode decodes any registered still-image format
// (JPEG, PNG, GIF, BMP, TIFF, WebP).
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}
