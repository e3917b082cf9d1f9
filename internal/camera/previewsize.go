package camera

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoPreviewSizes is returned when a device reports no preview size.
var ErrNoPreviewSizes = errors.New("camera: no preview sizes")

// Size is a preview resolution in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ClosestSize returns the index of the size nearest to width x height by
// squared Euclidean distance. Ties keep the earliest candidate.
func ClosestSize(sizes []Size, width, height int) (int, error) {
	best := -1
	bestScore := math.MaxInt

	for i, s := range sizes {
		dx := s.Width - width
		dy := s.Height - height

		score := dx*dx + dy*dy
		if score < bestScore {
			best = i
			bestScore = score
		}
	}

	if best == -1 {
		return -1, ErrNoPreviewSizes
	}
	return best, nil
}
