package camera

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// fpsWindow is the number of recent frame times kept for MeasuredFPS.
const fpsWindow = 30

// FrameBuffer holds the latest processed frame.
// Capture writes at its own pace, the UI and preview server read when ready.
type FrameBuffer struct {
	mu     sync.RWMutex
	frame  image.Image
	times  [fpsWindow]time.Time
	timeAt int

	// Frame metadata
	frameCount   atomic.Uint64
	lastFrameAt  atomic.Int64 // Unix nano timestamp
	droppedCount atomic.Uint64

	captureStartTime time.Time
}

// NewFrameBuffer creates a new frame buffer
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{
		captureStartTime: time.Now(),
	}
}

// Write stores a new frame (called by the capture goroutine).
// It never blocks on readers for longer than a pointer swap.
func (fb *FrameBuffer) Write(frame image.Image) {
	now := time.Now()

	fb.mu.Lock()
	fb.frame = frame
	fb.times[fb.timeAt%fpsWindow] = now
	fb.timeAt++
	fb.mu.Unlock()

	fb.frameCount.Add(1)
	fb.lastFrameAt.Store(now.UnixNano())
}

// Read returns the latest frame, or nil if none has been written yet.
func (fb *FrameBuffer) Read() image.Image {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	return fb.frame
}

// ReadIfNew returns the frame only if it's newer than lastRead
// Returns nil if no new frame, avoiding unnecessary UI refreshes
func (fb *FrameBuffer) ReadIfNew(lastRead uint64) (image.Image, uint64, bool) {
	fb.mu.RLock()
	defer fb.mu.RUnlock()

	currentCount := fb.frameCount.Load()
	if currentCount <= lastRead || fb.frame == nil {
		return nil, lastRead, false
	}
	return fb.frame, currentCount, true
}

// FrameCursor tracks what a reader has seen across session restarts. Each
// session gets a fresh FrameBuffer whose count restarts at 1, so the read
// position is reset whenever the buffer changes.
type FrameCursor struct {
	buffer *FrameBuffer
	seq    uint64
}

// Next returns the newest frame of fb if the reader has not seen it yet.
func (c *FrameCursor) Next(fb *FrameBuffer) (image.Image, uint64, bool) {
	if fb == nil {
		return nil, 0, false
	}
	if fb != c.buffer {
		c.buffer = fb
		c.seq = 0
	}
	img, seq, ok := fb.ReadIfNew(c.seq)
	if ok {
		c.seq = seq
	}
	return img, seq, ok
}

// GetFrameCount returns total frames written
func (fb *FrameBuffer) GetFrameCount() uint64 {
	return fb.frameCount.Load()
}

// GetLastFrameTime returns when the last frame was written
func (fb *FrameBuffer) GetLastFrameTime() time.Time {
	nanos := fb.lastFrameAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// GetCaptureStats returns the average rate since the buffer was created.
func (fb *FrameBuffer) GetCaptureStats() (fps float64, totalFrames uint64, uptime time.Duration) {
	uptime = time.Since(fb.captureStartTime)
	totalFrames = fb.frameCount.Load()

	if uptime.Seconds() > 0 {
		fps = float64(totalFrames) / uptime.Seconds()
	}
	return
}

// MeasuredFPS returns the rate over the most recent frames, or 0 when the
// stream has been idle for more than a second.
func (fb *FrameBuffer) MeasuredFPS() float64 {
	fb.mu.RLock()
	defer fb.mu.RUnlock()

	n := fb.timeAt
	if n < 2 {
		return 0
	}
	if n > fpsWindow {
		n = fpsWindow
	}
	newest := fb.times[(fb.timeAt-1)%fpsWindow]
	oldest := fb.times[(fb.timeAt-n)%fpsWindow]
	if time.Since(newest) > time.Second {
		return 0
	}
	span := newest.Sub(oldest).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(n-1) / span
}

// MarkDropped increments dropped frame counter
func (fb *FrameBuffer) MarkDropped() {
	fb.droppedCount.Add(1)
}

// GetDroppedCount returns number of dropped frames
func (fb *FrameBuffer) GetDroppedCount() uint64 {
	return fb.droppedCount.Load()
}
