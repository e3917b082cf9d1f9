// Package vision holds the frame processors applied between capture and display.
package vision

import (
	"image"

	"github.com/ngarneau/projet-robotique/internal/camera"
)

// Processor transforms one frame.
type Processor = camera.Processor

// Chain applies processors in order. A nil entry is skipped.
type Chain []Processor

func (c Chain) Process(img image.Image) (image.Image, error) {
	var err error
	for _, p := range c {
		if p == nil {
			continue
		}
		if img, err = p.Process(img); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// Passthrough returns frames unchanged.
type Passthrough struct{}

func (Passthrough) Process(img image.Image) (image.Image, error) { return img, nil }
