// Package processing turns an uploaded document into a flattened, image-only
// artifact: rasterize, encode, assemble, store, register.
package processing

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/FlatDrop/internal/imaging"
	"github.com/dharsanguruparan/FlatDrop/internal/model"
)

// Pipeline stages, as reported by model.StageOf.
const (
	StageRasterize = "rasterize"
	StageEncode    = "encode"
	StageAssemble  = "assemble"
	StageVerify    = "verify"
	StageImages    = "intermediates"
	StageStore     = "store"
	StageRegister  = "register"
	StageLocate    = "locate"
)

// ErrNoPages rejects documents that rasterize to nothing.
var ErrNoPages = errors.New("document has no pages")

// Rasterizer renders every page of the document at path, in order.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) ([]image.Image, error)
}

// Encoder resizes and encodes one page image.
type Encoder interface {
	Encode(ctx context.Context, img image.Image) (imaging.Page, error)
}

// Assembler builds a document with one page per image.
type Assembler interface {
	Assemble(ctx context.Context, pages []imaging.Page) ([]byte, error)
}

// PageCounter reads the page count of assembled output.
type PageCounter func(data []byte) (int, error)

// Rendered is the in-memory result of Render.
type Rendered struct {
	Pages    []imaging.Page
	Document []byte
}

// Renderer runs the CPU-bound half of a conversion.
type Renderer struct {
	Rasterizer Rasterizer
	Encoder    Encoder
	Assembler  Assembler
	// Workers bounds concurrent page encodes.
	Workers int
	// Verify, when set, checks the output page count.
	Verify PageCounter
}

// Render flattens the document at src. onRasterized runs once rasterization
// has succeeded and the source file is no longer needed.
func (r *Renderer) Render(ctx context.Context, src string, onRasterized func()) (*Rendered, error) {
	imgs, err := r.Rasterizer.Rasterize(ctx, src)
	if err != nil {
		return nil, model.ConversionError(StageRasterize, err)
	}
	if len(imgs) == 0 {
		return nil, model.ConversionError(StageRasterize, ErrNoPages)
	}
	if onRasterized != nil {
		onRasterized()
	}

	pages, err := r.encodeAll(ctx, imgs)
	if err != nil {
		return nil, model.ConversionError(StageEncode, err)
	}

	doc, err := r.Assembler.Assemble(ctx, pages)
	if err != nil {
		return nil, model.ConversionError(StageAssemble, err)
	}
	if r.Verify != nil {
		n, err := r.Verify(doc)
		if err != nil {
			return nil, model.ConversionError(StageVerify, err)
		}
		if n != len(pages) {
			return nil, model.ConversionError(StageVerify, fmt.Errorf("output has %d pages, want %d", n, len(pages)))
		}
	}
	return &Rendered{Pages: pages, Document: doc}, nil
}

// encodeAll encodes pages in parallel; the result keeps source order.
func (r *Renderer) encodeAll(ctx context.Context, imgs []image.Image) ([]imaging.Page, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	pages := make([]imaging.Page, len(imgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, img := range imgs {
		i, img := i, img
		g.Go(func() error {
			page, err := r.Encoder.Encode(gctx, img)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}
