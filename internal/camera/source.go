package camera

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownBackend is returned by NewEnumerator for an unsupported back-end name.
var ErrUnknownBackend = errors.New("camera: unknown backend")

// PixelFormat identifies the encoding of Frame.Data.
type PixelFormat int

const (
	FormatMJPEG PixelFormat = iota
	FormatYUYV
	FormatRGBA
)

func (p PixelFormat) String() string {
	switch p {
	case FormatMJPEG:
		return "mjpeg"
	case FormatYUYV:
		return "yuyv"
	case FormatRGBA:
		return "rgba"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(p))
}

// Frame is one raw image as delivered by a Device.
type Frame struct {
	Data       []byte
	Format     PixelFormat
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
}

// Enumerator lists the cameras of one back-end and opens them by index.
type Enumerator interface {
	NumberOfCameras() int
	CameraInfo(index int) (Camera, error)
	Open(index int) (Device, error)
}

// Device is an opened camera.
//
// SetPreviewSize must be called before Start. The channel returned by Start
// is closed when ctx is cancelled or the stream ends.
type Device interface {
	SupportedPreviewSizes() ([]Size, error)
	SetPreviewSize(Size) error
	PreviewSize() Size
	Start(ctx context.Context) (<-chan Frame, error)
	Close() error
}

// Settings configures the capture back-ends.
type Settings struct {
	Backend         string
	FPS             int
	Format          string // "mjpeg" or "yuyv"
	SysfsRoot       string
	FacingOverrides map[string]string
	// Synthetic back-end only
	SyntheticFacings []Facing
	SyntheticSizes   []Size
}

// NewEnumerator returns the enumerator for s.Backend.
func NewEnumerator(s Settings) (Enumerator, error) {
	if s.SysfsRoot == "" {
		s.SysfsRoot = SysfsVideoRoot
	}
	if s.FPS <= 0 {
		s.FPS = 15
	}

	switch s.Backend {
	case "", "v4l2":
		cams, err := DiscoverCameras(s.SysfsRoot, s.FacingOverrides)
		if err != nil {
			return nil, err
		}
		return &V4L2Enumerator{cameras: cams, settings: s}, nil
	case "ffmpeg":
		cams, err := DiscoverCameras(s.SysfsRoot, s.FacingOverrides)
		if err != nil {
			return nil, err
		}
		return &FFmpegEnumerator{cameras: cams, settings: s}, nil
	case "synthetic":
		return NewSyntheticEnumerator(s.SyntheticFacings, s.SyntheticSizes, s.FPS), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend)
}

func cameraAt(cameras []Camera, index int) (Camera, error) {
	if index < 0 || index >= len(cameras) {
		return Camera{}, fmt.Errorf("camera index %d out of range [0,%d)", index, len(cameras))
	}
	return cameras[index], nil
}
