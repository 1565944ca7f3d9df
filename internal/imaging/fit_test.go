package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func TestFitSize(t *testing.T) {
	box := image.Pt(2480, 3508)
	cases := []struct {
		name string
		src  image.Point
		want image.Point
	}{
		{"portrait inside", image.Pt(1414, 2000), image.Pt(1414, 2000)},
		{"landscape wider", image.Pt(5000, 2500), image.Pt(2480, 1240)},
		{"tall", image.Pt(2000, 7016), image.Pt(1000, 3508)},
		{"small stays", image.Pt(100, 50), image.Pt(100, 50)},
		{"exact box", box, box},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FitSize(tc.src, box))
		})
	}
}

func TestEncodeDownscalesKeepingAspect(t *testing.T) {
	f := NewFitter(100, 100)
	page, err := f.Encode(context.Background(), solid(400, 200))
	require.NoError(t, err)
	assert.Equal(t, 100, page.Width)
	assert.Equal(t, 50, page.Height)

	decoded, err := png.Decode(bytes.NewReader(page.PNG))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(100, 50), decoded.Bounds().Size())
}

func TestEncodeNeverUpscales(t *testing.T) {
	f := NewFitter(0, 0)
	assert.Equal(t, DefaultBox, f.Box)
	page, err := f.Encode(context.Background(), solid(30, 40))
	require.NoError(t, err)
	assert.Equal(t, 30, page.Width)
	assert.Equal(t, 40, page.Height)
}

func TestEncodeRejectsEmptyAndCancelled(t *testing.T) {
	f := NewFitter(10, 10)
	_, err := f.Encode(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Encode(ctx, solid(5, 5))
	assert.ErrorIs(t, err, context.Canceled)
}
