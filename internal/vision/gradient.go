package vision

import (
	"fmt"
	"image"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Gradient renders the Sobel derivatives of a frame as colour:
// rising intensity along x is red, falling is green, and the vertical
// derivative magnitude is blue. Values are normalised to the strongest
// edge in the frame.
type Gradient struct {
	enabled atomic.Bool
}

// NewGradient returns an enabled gradient processor.
func NewGradient() *Gradient {
	g := &Gradient{}
	g.enabled.Store(true)
	return g
}

// SetEnabled switches between the gradient view and the raw frame.
func (g *Gradient) SetEnabled(on bool) { g.enabled.Store(on) }

// Enabled reports whether frames are transformed.
func (g *Gradient) Enabled() bool { return g.enabled.Load() }

func (g *Gradient) Process(img image.Image) (image.Image, error) {
	if !g.Enabled() {
		return img, nil
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("gradient: to mat: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	gocv.Sobel(gray, &gx, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gy, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	dx, err := gx.DataPtrInt16()
	if err != nil {
		return nil, fmt.Errorf("gradient: x data: %w", err)
	}
	dy, err := gy.DataPtrInt16()
	if err != nil {
		return nil, fmt.Errorf("gradient: y data: %w", err)
	}
	return ColorizeGradient(dx, dy, gray.Cols(), gray.Rows())
}

// ColorizeGradient maps per-pixel x/y derivatives to an RGBA image. A frame
// without any edge renders black.
func ColorizeGradient(dx, dy []int16, width, height int) (*image.RGBA, error) {
	n := width * height
	if width <= 0 || height <= 0 || len(dx) < n || len(dy) < n {
		return nil, fmt.Errorf("gradient: %d/%d samples for %dx%d", len(dx), len(dy), width, height)
	}

	maxAbs := 0
	for i := 0; i < n; i++ {
		if a := abs16(dx[i]); a > maxAbs {
			maxAbs = a
		}
		if a := abs16(dy[i]); a > maxAbs {
			maxAbs = a
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < n; i++ {
		p := out.Pix[i*4 : i*4+4]
		p[3] = 255
		if maxAbs == 0 {
			continue
		}
		x := int(dx[i])
		if x > 0 {
			p[0] = uint8(x * 255 / maxAbs)
		} else {
			p[1] = uint8(-x * 255 / maxAbs)
		}
		p[2] = uint8(abs16(dy[i]) * 255 / maxAbs)
	}
	return out, nil
}

func abs16(v int16) int {
	if v < 0 {
		return -int(v)
	}
	return int(v)
}
