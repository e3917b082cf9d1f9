package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ngarneau/projet-robotique/internal/helpers"
)

// ErrManagerNotStarted is returned by operations that need an active session.
var ErrManagerNotStarted = errors.New("camera: manager not started")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Target            Size // desired preview size, default 320x240
	CaptureFPS        int
	Processor         Processor
	KillDeviceHolders bool
}

// Status is a snapshot of the manager state.
type Status struct {
	Active      bool
	SessionID   string
	Camera      Camera
	PreviewSize Size
	TargetFPS   int
	MaxFPS      int
	Frames      uint64
	Skipped     uint64
	Errors      uint32
	Dropped     uint64
	MeasuredFPS float64
	StartedAt   time.Time
	LastFrameAt time.Time
}

// Manager owns the single active camera session: it selects and opens a
// camera, negotiates the preview size and runs the capture worker.
type Manager struct {
	enum Enumerator
	opts ManagerOptions

	mu        sync.RWMutex
	device    Device
	camera    Camera
	size      Size
	worker    *CaptureWorker
	buffer    *FrameBuffer
	sessionID string
	startedAt time.Time
}

// NewManager creates a camera manager over enum.
func NewManager(enum Enumerator, opts ManagerOptions) *Manager {
	if opts.Target.Width <= 0 || opts.Target.Height <= 0 {
		opts.Target = Size{320, 240}
	}
	if opts.CaptureFPS <= 0 {
		opts.CaptureFPS = 15
	}
	return &Manager{enum: enum, opts: opts}
}

// Start opens the preferred camera and begins streaming. It is a no-op when
// a session is already active. ErrNoCamera means the host has no camera.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.worker != nil {
		return nil
	}

	if m.opts.KillDeviceHolders {
		m.killHolders(ctx)
	}

	dev, cam, err := SelectAndOpen(m.enum)
	if err != nil {
		return err
	}

	size, err := negotiatePreviewSize(dev, m.opts.Target)
	if err != nil {
		dev.Close()
		return fmt.Errorf("%s: %w", cam.DeviceID, err)
	}

	buffer := NewFrameBuffer()
	worker := NewCaptureWorker(cam, dev, m.opts.Processor, buffer, m.opts.CaptureFPS)
	if err := worker.Start(ctx); err != nil {
		dev.Close()
		return fmt.Errorf("start %s: %w", cam.DeviceID, err)
	}

	m.device = dev
	m.camera = cam
	m.size = size
	m.buffer = buffer
	m.worker = worker
	m.sessionID = uuid.NewString()
	m.startedAt = time.Now()

	slog.Info("camera session started", "component", "camera",
		"session", m.sessionID, "camera", cam.DeviceID, "name", cam.Name,
		"facing", cam.Facing.String(), "size", size.String(), "fps", m.opts.CaptureFPS)
	return nil
}

// killHolders frees the device nodes of every known camera before opening.
func (m *Manager) killHolders(ctx context.Context) {
	for i := 0; i < m.enum.NumberOfCameras(); i++ {
		info, err := m.enum.CameraInfo(i)
		if err != nil || !strings.HasPrefix(info.DevicePath, "/dev/") {
			continue
		}
		if helpers.KillDeviceHolders(ctx, info.DevicePath, true) {
			slog.Info("cleared device holders", "component", "camera", "device", info.DevicePath)
		}
	}
}

// negotiatePreviewSize picks the supported size nearest to target and
// applies it to dev.
func negotiatePreviewSize(dev Device, target Size) (Size, error) {
	sizes, err := dev.SupportedPreviewSizes()
	if err != nil {
		return Size{}, err
	}
	idx, err := ClosestSize(sizes, target.Width, target.Height)
	if err != nil {
		return Size{}, err
	}
	size := sizes[idx]
	if err := dev.SetPreviewSize(size); err != nil {
		return Size{}, fmt.Errorf("set preview size %s: %w", size, err)
	}
	// Drivers may adjust the request; report what they granted
	if got := dev.PreviewSize(); got.Width > 0 && got.Height > 0 {
		size = got
	}
	return size, nil
}

// Stop ends the session and releases the device. Safe to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.worker == nil {
		return
	}

	m.worker.Stop()
	if err := m.device.Close(); err != nil {
		slog.Warn("close camera", "component", "camera", "camera", m.camera.DeviceID, "error", err)
	}
	slog.Info("camera session stopped", "component", "camera",
		"session", m.sessionID, "uptime", time.Since(m.startedAt).Round(time.Millisecond).String())

	m.worker = nil
	m.device = nil
	m.sessionID = ""
}

// Active reports whether a session is running.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.worker != nil
}

// ActiveCamera returns the camera of the current session.
func (m *Manager) ActiveCamera() (Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.worker == nil {
		return Camera{}, ErrManagerNotStarted
	}
	return m.camera, nil
}

// PreviewSize returns the negotiated size of the current session.
func (m *Manager) PreviewSize() (Size, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.worker == nil {
		return Size{}, ErrManagerNotStarted
	}
	return m.size, nil
}

// GetFrameBuffer returns the buffer of the current session, or nil.
func (m *Manager) GetFrameBuffer() *FrameBuffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.worker == nil {
		return nil
	}
	return m.buffer
}

// SetFPS changes the target rate of the active worker.
func (m *Manager) SetFPS(fps int) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.worker == nil {
		return ErrManagerNotStarted
	}
	m.worker.SetFPS(fps)
	return nil
}

// GetFPS returns the target rate of the active worker, or 0.
func (m *Manager) GetFPS() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.worker == nil {
		return 0
	}
	return m.worker.GetFPS()
}

// MaxFPS returns the configured capture rate.
func (m *Manager) MaxFPS() int {
	return m.opts.CaptureFPS
}

// Status returns a snapshot of the session.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.worker == nil {
		return Status{MaxFPS: m.opts.CaptureFPS}
	}
	frames, skipped, errs := m.worker.GetStats()
	return Status{
		Active:      true,
		SessionID:   m.sessionID,
		Camera:      m.camera,
		PreviewSize: m.size,
		TargetFPS:   m.worker.GetFPS(),
		MaxFPS:      m.opts.CaptureFPS,
		Frames:      frames,
		Skipped:     skipped,
		Errors:      errs,
		Dropped:     m.buffer.GetDroppedCount(),
		MeasuredFPS: m.buffer.MeasuredFPS(),
		StartedAt:   m.startedAt,
		LastFrameAt: m.worker.LastFrameTime(),
	}
}
