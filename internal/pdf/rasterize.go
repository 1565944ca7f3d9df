package pdfutil

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// DefaultScale is the longest side, in pixels, of every rasterized page.
const DefaultScale = 2000

// ErrEmptyPage is returned for a page with a zero-sized media box.
var ErrEmptyPage = errors.New("page has no area")

// FitzRasterizer renders document pages with MuPDF.
type FitzRasterizer struct {
	// Scale is the target longest side in pixels.
	Scale int
}

// NewFitzRasterizer returns a rasterizer for the given scale.
func NewFitzRasterizer(scale int) *FitzRasterizer {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &FitzRasterizer{Scale: scale}
}

// DPIFor returns the resolution that renders a page of bounds (in points)
// with its longest side equal to scale pixels.
func DPIFor(bounds image.Rectangle, scale int) (float64, error) {
	longest := max(bounds.Dx(), bounds.Dy())
	if longest <= 0 {
		return 0, ErrEmptyPage
	}
	return 72 * float64(scale) / float64(longest), nil
}

// Rasterize renders every page of the document at path, in order.
func (r *FitzRasterizer) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	count := doc.NumPage()
	pages := make([]image.Image, 0, count)
	for n := 0; n < count; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		bounds, err := doc.Bound(n)
		if err != nil {
			return nil, fmt.Errorf("page %d bounds: %w", n+1, err)
		}
		dpi, err := DPIFor(bounds, r.Scale)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n+1, err)
		}
		img, err := doc.ImageDPI(n, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", n+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}
