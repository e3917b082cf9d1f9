package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// V4L2Enumerator opens cameras through the kernel V4L2 API.
type V4L2Enumerator struct {
	cameras  []Camera
	settings Settings
}

func (e *V4L2Enumerator) NumberOfCameras() int { return len(e.cameras) }

func (e *V4L2Enumerator) CameraInfo(index int) (Camera, error) {
	return cameraAt(e.cameras, index)
}

func (e *V4L2Enumerator) Open(index int) (Device, error) {
	cam, err := cameraAt(e.cameras, index)
	if err != nil {
		return nil, err
	}

	dev, err := device.Open(cam.DevicePath, device.WithFPS(uint32(e.settings.FPS)))
	if err != nil {
		return nil, fmt.Errorf("v4l2 open %s: %w", cam.DevicePath, err)
	}

	pixFmt, err := pickPixelFormat(dev, e.settings.Format)
	if err != nil {
		dev.Close()
		return nil, err
	}

	slog.Info("v4l2 device opened", "component", "camera",
		"device", cam.DevicePath, "card", dev.Capability().Card, "format", fourCCName(pixFmt))

	return &v4l2Device{cam: cam, dev: dev, pixFmt: pixFmt}, nil
}

// pickPixelFormat prefers the configured encoding and falls back to the other one.
func pickPixelFormat(dev *device.Device, preferred string) (v4l2.FourCCType, error) {
	order := []v4l2.FourCCType{v4l2.PixelFmtMJPEG, v4l2.PixelFmtYUYV}
	if preferred == "yuyv" {
		order = []v4l2.FourCCType{v4l2.PixelFmtYUYV, v4l2.PixelFmtMJPEG}
	}

	descs, err := v4l2.GetAllFormatDescriptions(dev.Fd())
	if err != nil {
		return 0, fmt.Errorf("v4l2 format descriptions: %w", err)
	}
	for _, want := range order {
		for _, d := range descs {
			if d.PixelFormat == want {
				return want, nil
			}
		}
	}
	return 0, fmt.Errorf("v4l2: device supports neither MJPEG nor YUYV")
}

func fourCCName(f v4l2.FourCCType) string {
	if f == v4l2.PixelFmtYUYV {
		return FormatYUYV.String()
	}
	return FormatMJPEG.String()
}

type v4l2Device struct {
	cam    Camera
	dev    *device.Device
	pixFmt v4l2.FourCCType
	size   Size

	mu      sync.Mutex
	started bool
	drained chan struct{}
}

// drainTimeout bounds how long Close waits for go4vl to end its stream.
const drainTimeout = 2 * time.Second

// SupportedPreviewSizes lists discrete sizes in driver order. Stepwise and
// continuous ranges contribute their two end points.
func (d *v4l2Device) SupportedPreviewSizes() ([]Size, error) {
	enums, err := v4l2.GetFormatFrameSizes(d.dev.Fd(), d.pixFmt)
	if err != nil {
		return nil, fmt.Errorf("v4l2 frame sizes: %w", err)
	}

	var sizes []Size
	seen := make(map[Size]bool)
	add := func(s Size) {
		if s.Width > 0 && s.Height > 0 && !seen[s] {
			seen[s] = true
			sizes = append(sizes, s)
		}
	}
	for _, e := range enums {
		add(Size{int(e.Size.MinWidth), int(e.Size.MinHeight)})
		if e.Size.MaxWidth != e.Size.MinWidth || e.Size.MaxHeight != e.Size.MinHeight {
			add(Size{int(e.Size.MaxWidth), int(e.Size.MaxHeight)})
		}
	}
	if len(sizes) == 0 {
		return nil, ErrNoPreviewSizes
	}
	return sizes, nil
}

func (d *v4l2Device) SetPreviewSize(s Size) error {
	err := d.dev.SetPixFormat(v4l2.PixFormat{
		Width:       uint32(s.Width),
		Height:      uint32(s.Height),
		PixelFormat: d.pixFmt,
		Field:       v4l2.FieldNone,
	})
	if err != nil {
		return fmt.Errorf("v4l2 set format %s: %w", s, err)
	}

	// The driver may round to a size it supports
	if pf, err := d.dev.GetPixFormat(); err == nil {
		s = Size{int(pf.Width), int(pf.Height)}
	}
	d.size = s
	return nil
}

func (d *v4l2Device) PreviewSize() Size { return d.size }

func (d *v4l2Device) Start(ctx context.Context) (<-chan Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil, ErrWorkerRunning
	}
	if err := d.dev.Start(ctx); err != nil {
		return nil, fmt.Errorf("v4l2 stream %s: %w", d.cam.DevicePath, err)
	}
	d.started = true

	format := FormatMJPEG
	if d.pixFmt == v4l2.PixelFmtYUYV {
		format = FormatYUYV
	}

	out := make(chan Frame, 1)
	drained := make(chan struct{})
	d.drained = drained
	size := d.size
	go func() {
		defer close(drained)
		relayFrames(ctx, d.dev.GetOutput(), out, func(data []byte, seq uint64) Frame {
			return Frame{Data: data, Format: format, Width: size.Width, Height: size.Height, Seq: seq, CapturedAt: time.Now()}
		})
	}()
	return out, nil
}

// relayFrames forwards buffers from raw to out until ctx is cancelled.
// After cancellation it keeps reading raw until the producer closes it, so
// go4vl's stream loop never blocks on a full output channel and can run its
// own stop sequence. out is closed on return.
func relayFrames(ctx context.Context, raw <-chan []byte, out chan<- Frame, frame func(data []byte, seq uint64) Frame) {
	defer close(out)
	defer func() {
		for range raw {
		}
	}()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-raw:
			if !ok {
				return
			}
			if len(data) == 0 {
				continue
			}
			seq++
			select {
			case out <- frame(data, seq):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (d *v4l2Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		// go4vl stops streaming itself once the stream context is cancelled
		select {
		case <-d.drained:
		case <-time.After(drainTimeout):
			slog.Warn("v4l2 stream did not end, stopping", "component", "camera", "device", d.cam.DevicePath)
			if err := d.dev.Stop(); err != nil {
				slog.Warn("v4l2 stop failed", "component", "camera", "device", d.cam.DevicePath, "error", err)
			}
		}
		d.started = false
	}
	return d.dev.Close()
}
