package vision

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngarneau/projet-robotique/internal/camera"
)

func TestColorizeGradient(t *testing.T) {
	dx := []int16{100, -50, 0, 0}
	dy := []int16{0, 0, -100, 0}

	img, err := ColorizeGradient(dx, dy, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{G: 127, A: 255}, img.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, img.RGBAAt(0, 1))
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(1, 1))
}

func TestColorizeGradientFlat(t *testing.T) {
	img, err := ColorizeGradient(make([]int16, 6), make([]int16, 6), 3, 2)
	require.NoError(t, err)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(x, y))
		}
	}
}

func TestColorizeGradientShortInput(t *testing.T) {
	_, err := ColorizeGradient(make([]int16, 3), make([]int16, 4), 2, 2)
	assert.Error(t, err)
}

func halfWhite(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if x >= w/2 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestGradientVerticalEdge(t *testing.T) {
	out, err := NewGradient().Process(halfWhite(8, 6))
	require.NoError(t, err)

	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 8, 6), rgba.Bounds())

	edge := rgba.RGBAAt(4, 3)
	assert.Equal(t, uint8(255), edge.R, "dark to bright along x is red")
	assert.Zero(t, edge.G)
	assert.Zero(t, edge.B)
	assert.Equal(t, color.RGBA{A: 255}, rgba.RGBAAt(0, 3), "flat area")
}

func TestGradientDisabled(t *testing.T) {
	g := NewGradient()
	g.SetEnabled(false)
	src := halfWhite(4, 4)
	out, err := g.Process(src)
	require.NoError(t, err)
	assert.Same(t, src, out)
}

func TestNightMode(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{100, 100, 100, 255})
	src.SetRGBA(1, 0, color.RGBA{255, 255, 255, 255})

	n := NewNightMode(true)
	out, err := n.Process(src)
	require.NoError(t, err)

	rgba := out.(*image.RGBA)
	assert.Equal(t, color.RGBA{R: 160, A: 255}, rgba.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, rgba.RGBAAt(1, 0), "clamped")

	assert.False(t, n.Toggle())
	out, _ = n.Process(src)
	assert.Same(t, src, out)
}

func TestNightModeGenericSource(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 1, 1))
	src.SetGray(0, 0, color.Gray{Y: 50})
	out, err := NewNightMode(true).Process(src)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 80, A: 255}, out.(*image.RGBA).RGBAAt(0, 0))
}

func TestNightModeColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 160, A: 255}, NightModeColor(color.RGBA{100, 100, 100, 255}))
}

type failing struct{}

func (failing) Process(image.Image) (image.Image, error) { return nil, errors.New("boom") }

func TestChain(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	src.SetRGBA(0, 0, color.RGBA{100, 100, 100, 255})

	out, err := Chain{Passthrough{}, nil, NewNightMode(true)}.Process(src)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 160, A: 255}, out.(*image.RGBA).RGBAAt(0, 0))

	_, err = Chain{failing{}, NewNightMode(true)}.Process(src)
	assert.EqualError(t, err, "boom")
}

func TestChainAcceptsCaptureProcessors(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1, 1))
	var calls int
	count := camera.ProcessorFunc(func(img image.Image) (image.Image, error) {
		calls++
		return img, nil
	})

	var p camera.Processor = Chain{count, NewNightMode(false), count}
	_, err := p.Process(src)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
