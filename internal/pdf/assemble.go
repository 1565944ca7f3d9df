package pdfutil

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/dharsanguruparan/FlatDrop/internal/imaging"
)

// Image placement modes.
const (
	// PlacementNatural draws each image at 1px = 1pt anchored to the
	// bottom-left corner of the page. Oversized images are clipped.
	PlacementNatural = "natural"
	// PlacementStretch draws each image over the full page box.
	PlacementStretch = "stretch"
)

// Letter is the default output page size in points.
const (
	LetterWidth  = 612.0
	LetterHeight = 792.0
)

// Assembler builds one output page per image.
type Assembler struct {
	PageWidth  float64
	PageHeight float64
	Placement  string
	Creator    string
}

// NewAssembler returns an Assembler, defaulting to a Letter page and natural
// placement.
func NewAssembler(width, height float64, placement string) *Assembler {
	if width <= 0 || height <= 0 {
		width, height = LetterWidth, LetterHeight
	}
	if placement != PlacementStretch {
		placement = PlacementNatural
	}
	return &Assembler{PageWidth: width, PageHeight: height, Placement: placement, Creator: "flatdrop"}
}

// Assemble writes pages, in order, into a new PDF.
func (a *Assembler) Assemble(ctx context.Context, pages []imaging.Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("assemble: no pages")
	}
	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: a.PageWidth, Ht: a.PageHeight},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	if a.Creator != "" {
		doc.SetCreator(a.Creator, true)
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("page-%03d", i+1)
		doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(page.PNG))
		if doc.Err() {
			return nil, fmt.Errorf("embed page %d: %w", i+1, doc.Error())
		}
		doc.AddPage()
		x, y, w, h := a.frame(page)
		doc.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// frame returns the image rectangle in fpdf's top-left coordinates.
func (a *Assembler) frame(page imaging.Page) (x, y, w, h float64) {
	if a.Placement == PlacementStretch {
		return 0, 0, a.PageWidth, a.PageHeight
	}
	w, h = float64(page.Width), float64(page.Height)
	return 0, a.PageHeight - h, w, h
}
