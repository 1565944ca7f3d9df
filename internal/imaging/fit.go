// Package imaging resizes rasterized pages and re-encodes them as PNG.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// DefaultBox is the A4 frame at 300 DPI.
var DefaultBox = image.Pt(2480, 3508)

// Page is one encoded page image.
type Page struct {
	PNG    []byte
	Width  int
	Height int
}

// Fitter scales images to fit inside Box and encodes them as PNG.
type Fitter struct {
	Box image.Point
}

// NewFitter returns a Fitter for the given box. Non-positive sides fall back
// to DefaultBox.
func NewFitter(width, height int) *Fitter {
	if width <= 0 || height <= 0 {
		return &Fitter{Box: DefaultBox}
	}
	return &Fitter{Box: image.Pt(width, height)}
}

// FitSize returns the largest size with the aspect ratio of src that fits
// inside box. Images already inside the box keep their size.
func FitSize(src, box image.Point) image.Point {
	if src.X <= box.X && src.Y <= box.Y {
		return src
	}
	// Compare src.X/src.Y against box.X/box.Y without floats.
	if int64(src.X)*int64(box.Y) >= int64(src.Y)*int64(box.X) {
		h := int(int64(src.Y) * int64(box.X) / int64(src.X))
		return image.Pt(box.X, max(h, 1))
	}
	w := int(int64(src.X) * int64(box.Y) / int64(src.Y))
	return image.Pt(max(w, 1), box.Y)
}

// Encode resizes img and returns it as PNG.
func (f *Fitter) Encode(ctx context.Context, img image.Image) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if img == nil {
		return Page{}, errors.New("encode page: nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return Page{}, errors.New("encode page: empty image")
	}
	size := FitSize(b.Size(), f.Box)

	var out image.Image = img
	if size != b.Size() {
		dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		out = dst
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, out); err != nil {
		return Page{}, fmt.Errorf("encode png: %w", err)
	}
	return Page{PNG: buf.Bytes(), Width: size.X, Height: size.Y}, nil
}
