package camera

import (
	"context"
	"image"
	"strconv"
	"sync"
	"time"
)

// DefaultSyntheticSizes mimics a typical webcam size list.
var DefaultSyntheticSizes = []Size{
	{1280, 720},
	{640, 480},
	{352, 288},
	{320, 240},
	{176, 144},
}

// SyntheticEnumerator serves in-memory cameras that render a moving test pattern.
type SyntheticEnumerator struct {
	cameras []Camera
	sizes   []Size
	fps     int
}

// NewSyntheticEnumerator creates one camera per facing. A nil sizes slice
// uses DefaultSyntheticSizes.
func NewSyntheticEnumerator(facings []Facing, sizes []Size, fps int) *SyntheticEnumerator {
	if sizes == nil {
		sizes = DefaultSyntheticSizes
	}
	if fps <= 0 {
		fps = 15
	}
	e := &SyntheticEnumerator{sizes: sizes, fps: fps}
	for i, f := range facings {
		id := "synthetic" + strconv.Itoa(i)
		e.cameras = append(e.cameras, Camera{
			Index:      i,
			DeviceID:   id,
			DevicePath: "synthetic://" + id,
			Name:       "Synthetic " + f.String() + " camera",
			Facing:     f,
			Available:  true,
		})
	}
	return e
}

func (e *SyntheticEnumerator) NumberOfCameras() int { return len(e.cameras) }

func (e *SyntheticEnumerator) CameraInfo(index int) (Camera, error) {
	return cameraAt(e.cameras, index)
}

func (e *SyntheticEnumerator) Open(index int) (Device, error) {
	cam, err := cameraAt(e.cameras, index)
	if err != nil {
		return nil, err
	}
	sizes := make([]Size, len(e.sizes))
	copy(sizes, e.sizes)
	return &syntheticDevice{cam: cam, sizes: sizes, fps: e.fps}, nil
}

type syntheticDevice struct {
	cam   Camera
	sizes []Size
	fps   int
	size  Size

	mu      sync.Mutex
	started bool
	closed  bool
}

func (d *syntheticDevice) SupportedPreviewSizes() ([]Size, error) {
	if len(d.sizes) == 0 {
		return nil, ErrNoPreviewSizes
	}
	return d.sizes, nil
}

func (d *syntheticDevice) SetPreviewSize(s Size) error {
	d.size = s
	return nil
}

func (d *syntheticDevice) PreviewSize() Size { return d.size }

func (d *syntheticDevice) Start(ctx context.Context) (<-chan Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil, ErrWorkerRunning
	}
	d.started = true

	size := d.size
	if size.Width <= 0 || size.Height <= 0 {
		size = Size{320, 240}
	}

	out := make(chan Frame, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(time.Second / time.Duration(d.fps))
		defer ticker.Stop()

		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			seq++
			img := GenerateTestPattern(size, d.cam.Facing, int(seq))
			select {
			case out <- Frame{Data: img.Pix, Format: FormatRGBA, Width: size.Width, Height: size.Height, Seq: seq, CapturedAt: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (d *syntheticDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// GenerateTestPattern renders a frame with strong edges so the gradient
// view has something to show: a sky gradient for back cameras, a
// checkerboard for front cameras, and a bar that moves with frameNum.
func GenerateTestPattern(size Size, facing Facing, frameNum int) *image.RGBA {
	width, height := size.Width, size.Height
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	barX := (frameNum * 4) % width
	barW := width / 16
	if barW < 2 {
		barW = 2
	}

	for y := 0; y < height; y++ {
		off := y * img.Stride
		for x := 0; x < width; x++ {
			var r, g, b uint8

			switch facing {
			case FacingBack:
				// Blue gradient sky with blocky "buildings"
				gradient := float64(y) / float64(height)
				r = uint8(135 * (1 - gradient))
				g = uint8(206 * (1 - gradient))
				b = uint8(250 * (1 - gradient))
				if y > height*2/3 && (x/(width/8+1))%2 == 0 {
					r, g, b = 90, 90, 100
				}
			default:
				// Checkerboard
				if ((x/20)+(y/20))%2 == 0 {
					r, g, b = 220, 220, 220
				} else {
					r, g, b = 40, 40, 40
				}
			}

			if x >= barX && x < barX+barW {
				r, g, b = 255, 255, 255
			}

			img.Pix[off+0] = r
			img.Pix[off+1] = g
			img.Pix[off+2] = b
			img.Pix[off+3] = 255
			off += 4
		}
	}

	return img
}
