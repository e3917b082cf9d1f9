package vision

import (
	"image"
	"image/color"
	"sync/atomic"
)

// =============================================================================
// Night Mode Filter
// =============================================================================
// Red-tinted, brightness-enhanced rendering for dark rooms:
//   1. Convert pixel to grayscale luminance (BT.601)
//   2. Apply 1.6x brightness boost (clamped to 255)
//   3. Map result to red channel only (R = boosted, G = 0, B = 0)
// =============================================================================

// nightModeLUT is a pre-computed lookup table: grayscale value -> boosted value.
var nightModeLUT [256]uint8

func init() {
	for i := 0; i < 256; i++ {
		v := float64(i) * 1.6
		if v > 255 {
			v = 255
		}
		nightModeLUT[i] = uint8(v)
	}
}

// NightMode is a processor that can be toggled while frames flow.
type NightMode struct {
	enabled atomic.Bool
}

// NewNightMode returns a night mode filter in the given state.
func NewNightMode(on bool) *NightMode {
	n := &NightMode{}
	n.enabled.Store(on)
	return n
}

// Toggle flips the filter and returns the new state.
func (n *NightMode) Toggle() bool {
	for {
		old := n.enabled.Load()
		if n.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// SetEnabled sets the filter state.
func (n *NightMode) SetEnabled(on bool) { n.enabled.Store(on) }

// Enabled reports whether the filter is applied.
func (n *NightMode) Enabled() bool { return n.enabled.Load() }

func (n *NightMode) Process(img image.Image) (image.Image, error) {
	if !n.Enabled() {
		return img, nil
	}
	return applyNightMode(img), nil
}

func luminance(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b)) / 1000)
}

// applyNightMode converts an image to a red-tinted night vision image.
// *image.RGBA and *image.NRGBA take a direct path over Pix.
func applyNightMode(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	var pix []uint8
	var stride int
	switch s := src.(type) {
	case *image.RGBA:
		pix, stride = s.Pix[s.PixOffset(bounds.Min.X, bounds.Min.Y):], s.Stride
	case *image.NRGBA:
		pix, stride = s.Pix[s.PixOffset(bounds.Min.X, bounds.Min.Y):], s.Stride
	}

	for y := 0; y < h; y++ {
		dstOff := y * dst.Stride
		for x := 0; x < w; x++ {
			var gray uint8
			if pix != nil {
				o := y*stride + x*4
				gray = luminance(pix[o], pix[o+1], pix[o+2])
			} else {
				r, g, b, _ := src.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
				gray = luminance(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			}
			dst.Pix[dstOff+0] = nightModeLUT[gray]
			dst.Pix[dstOff+3] = 255
			dstOff += 4
		}
	}
	return dst
}

// NightModeColor returns the night-mode equivalent of a single color,
// for UI elements drawn next to filtered frames.
func NightModeColor(c color.Color) color.RGBA {
	r, g, b, _ := c.RGBA()
	return color.RGBA{R: nightModeLUT[luminance(uint8(r>>8), uint8(g>>8), uint8(b>>8))], A: 255}
}
