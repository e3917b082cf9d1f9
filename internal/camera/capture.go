package camera

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrWorkerRunning is returned when starting a worker or stream twice.
var ErrWorkerRunning = errors.New("camera: capture already running")

// Processor transforms each decoded frame before display.
type Processor interface {
	Process(img image.Image) (image.Image, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(image.Image) (image.Image, error)

func (f ProcessorFunc) Process(img image.Image) (image.Image, error) { return f(img) }

// CaptureWorker pulls frames from a Device, runs the processor and publishes
// the result to a FrameBuffer.
type CaptureWorker struct {
	camera      Camera
	device      Device
	processor   Processor
	frameBuffer *FrameBuffer

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex

	// targetFPS is the effective rate; frames arriving faster are skipped
	// without decoding. captureFPS is the rate requested from the device.
	targetFPS  atomic.Int32
	captureFPS int

	// Stats
	lastFrameTime atomic.Int64
	frameCount    atomic.Uint64
	errorCount    atomic.Uint32
	skippedFrames atomic.Uint64
}

// NewCaptureWorker creates a worker for an opened device. A nil processor
// publishes decoded frames unchanged.
func NewCaptureWorker(camera Camera, device Device, processor Processor, buffer *FrameBuffer, captureFPS int) *CaptureWorker {
	if captureFPS <= 0 {
		captureFPS = 15
	}
	cw := &CaptureWorker{
		camera:      camera,
		device:      device,
		processor:   processor,
		frameBuffer: buffer,
		captureFPS:  captureFPS,
	}
	cw.targetFPS.Store(int32(captureFPS))
	return cw
}

// SetFPS updates the target FPS for this capture worker.
// The device keeps streaming at its rate; surplus frames are skipped.
func (cw *CaptureWorker) SetFPS(fps int) {
	if fps < 1 {
		fps = 1
	}
	if fps > cw.captureFPS {
		fps = cw.captureFPS
	}
	oldFPS := cw.targetFPS.Swap(int32(fps))
	if oldFPS != int32(fps) {
		slog.Info("target fps changed", "component", "capture",
			"camera", cw.camera.DeviceID, "from", oldFPS, "to", fps)
	}
}

// GetFPS returns current FPS setting
func (cw *CaptureWorker) GetFPS() int {
	return int(cw.targetFPS.Load())
}

// GetMaxFPS returns the rate requested from the device
func (cw *CaptureWorker) GetMaxFPS() int {
	return cw.captureFPS
}

// Start begins capturing frames from the device.
func (cw *CaptureWorker) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running.Load() {
		return ErrWorkerRunning
	}

	streamCtx, cancel := context.WithCancel(ctx)
	frames, err := cw.device.Start(streamCtx)
	if err != nil {
		cancel()
		return err
	}

	cw.cancel = cancel
	cw.done = make(chan struct{})
	cw.running.Store(true)
	go cw.captureLoop(frames, cw.done)
	return nil
}

// Stop cancels the stream and waits for the capture loop to exit.
func (cw *CaptureWorker) Stop() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.running.Load() {
		return
	}
	cw.cancel()
	<-cw.done
	cw.running.Store(false)
}

// Running reports whether the capture loop is active.
func (cw *CaptureWorker) Running() bool {
	return cw.running.Load()
}

// GetStats returns capture statistics
func (cw *CaptureWorker) GetStats() (frameCount uint64, skipped uint64, errors uint32) {
	return cw.frameCount.Load(), cw.skippedFrames.Load(), cw.errorCount.Load()
}

// LastFrameTime returns when the last frame was published.
func (cw *CaptureWorker) LastFrameTime() time.Time {
	nanos := cw.lastFrameTime.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (cw *CaptureWorker) captureLoop(frames <-chan Frame, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("capture loop panic", "component", "capture", "camera", cw.camera.DeviceID, "panic", r)
		}
	}()

	var lastProcessed time.Time
	for frame := range frames {
		// Time-based frame limiting: drivers often ignore the requested rate
		minInterval := time.Second / time.Duration(cw.GetFPS())
		if !lastProcessed.IsZero() && frame.CapturedAt.Sub(lastProcessed) < minInterval {
			cw.skippedFrames.Add(1)
			cw.frameBuffer.MarkDropped()
			continue
		}
		lastProcessed = frame.CapturedAt

		if !cw.handleFrame(frame) {
			continue
		}

		count := cw.frameCount.Add(1)
		cw.lastFrameTime.Store(time.Now().UnixNano())
		if count%150 == 1 {
			slog.Debug("frame published", "component", "capture",
				"camera", cw.camera.DeviceID, "frame", count, "size", Size{frame.Width, frame.Height}.String(),
				"fps", cw.GetFPS(), "skipped", cw.skippedFrames.Load(), "errors", cw.errorCount.Load())
		}
	}
	slog.Info("capture stream ended", "component", "capture", "camera", cw.camera.DeviceID)
}

// handleFrame decodes, processes and publishes one frame. Failures are
// counted and the frame is dropped.
func (cw *CaptureWorker) handleFrame(frame Frame) bool {
	img, err := DecodeFrame(frame)
	if err != nil {
		cw.countError("decode", err)
		return false
	}

	if cw.processor != nil {
		img, err = cw.processor.Process(img)
		if err != nil {
			cw.countError("process", err)
			return false
		}
	}

	cw.frameBuffer.Write(img)
	return true
}

func (cw *CaptureWorker) countError(stage string, err error) {
	n := cw.errorCount.Add(1)
	cw.frameBuffer.MarkDropped()
	// First error and then every 100th, to keep a broken stream from flooding the log
	if n%100 == 1 {
		slog.Warn("frame dropped", "component", "capture",
			"camera", cw.camera.DeviceID, "stage", stage, "errors", n, "error", err)
	}
}
