package pdfutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FlatDrop/internal/imaging"
)

func pngPage(t *testing.T, w, h int, shade uint8) imaging.Page {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return imaging.Page{PNG: buf.Bytes(), Width: w, Height: h}
}

func TestAssembleOnePagePerImage(t *testing.T) {
	a := NewAssembler(0, 0, "")
	assert.Equal(t, PlacementNatural, a.Placement)

	pages := []imaging.Page{pngPage(t, 40, 60, 10), pngPage(t, 60, 40, 120), pngPage(t, 30, 30, 250)}
	out, err := a.Assemble(context.Background(), pages)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	n, err := PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAssembleRejectsEmpty(t *testing.T) {
	_, err := NewAssembler(0, 0, "").Assemble(context.Background(), nil)
	assert.Error(t, err)
}

func TestAssembleRejectsCorruptImage(t *testing.T) {
	_, err := NewAssembler(0, 0, "").Assemble(context.Background(), []imaging.Page{{PNG: []byte("nope"), Width: 1, Height: 1}})
	assert.Error(t, err)
}

func TestFrame(t *testing.T) {
	page := imaging.Page{Width: 100, Height: 200}

	natural := NewAssembler(612, 792, PlacementNatural)
	x, y, w, h := natural.frame(page)
	assert.Equal(t, []float64{0, 592, 100, 200}, []float64{x, y, w, h})

	stretch := NewAssembler(612, 792, PlacementStretch)
	x, y, w, h = stretch.frame(page)
	assert.Equal(t, []float64{0, 0, 612, 792}, []float64{x, y, w, h})
}

func TestDPIFor(t *testing.T) {
	dpi, err := DPIFor(image.Rect(0, 0, 612, 792), 2000)
	require.NoError(t, err)
	assert.InDelta(t, 72*2000.0/792, dpi, 1e-9)

	_, err = DPIFor(image.Rectangle{}, 2000)
	assert.ErrorIs(t, err, ErrEmptyPage)
}

func TestRasterizeRoundTrip(t *testing.T) {
	out, err := NewAssembler(0, 0, PlacementStretch).Assemble(context.Background(),
		[]imaging.Page{pngPage(t, 20, 20, 0), pngPage(t, 20, 20, 255)})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(path, out, 0o600))

	pages, err := NewFitzRasterizer(200).Rasterize(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, p := range pages {
		size := p.Bounds().Size()
		assert.InDelta(t, 200, max(size.X, size.Y), 2)
	}

	r, g, b, _ := pages[1].At(pages[1].Bounds().Dx()/2, pages[1].Bounds().Dy()/2).RGBA()
	white := color.RGBA64{R: 0xffff, G: 0xffff, B: 0xffff}
	assert.InDelta(t, white.R, r, 0x0800)
	assert.InDelta(t, white.G, g, 0x0800)
	assert.InDelta(t, white.B, b, 0x0800)
}

func TestRasterizeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a document"), 0o600))
	pages, err := NewFitzRasterizer(0).Rasterize(context.Background(), path)
	// MuPDF either refuses the file or repairs it into nothing.
	assert.True(t, err != nil || len(pages) == 0)
}
