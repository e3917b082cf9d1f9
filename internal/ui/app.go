package ui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/ngarneau/projet-robotique/internal/camera"
	"github.com/ngarneau/projet-robotique/internal/config"
	"github.com/ngarneau/projet-robotique/internal/vision"
)

// AppID identifies the application to the fyne preferences store.
const AppID = "ca.ulaval.projet_robotique"

// NoCameraMessage is the text of the blocking notice shown when the host has no camera.
const NoCameraMessage = "Your device has no cameras!"

// Session is the camera session driven by the video screen.
type Session interface {
	Start(ctx context.Context) error
	Stop()
	Status() camera.Status
	GetFrameBuffer() *camera.FrameBuffer
}

// Options wires the video screen to its camera session and processors.
type Options struct {
	Session   Session
	Gradient  *vision.Gradient  // optional, adds a toggle
	NightMode *vision.NightMode // optional, adds a toggle
}

// App is the two-screen application: a launcher and a video screen.
type App struct {
	fyneApp fyne.App
	window  fyne.Window
	cfg     *config.Config
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc

	// Screens
	launcher     fyne.CanvasObject
	videoButton  *widget.Button
	video        *VideoView
	videoContent fyne.CanvasObject
	backButton   *widget.Button
	onVideo      atomic.Bool

	// Frame refresh loop, running while the video screen is resumed
	refreshMu   sync.Mutex
	refreshStop chan struct{}
	refreshDone chan struct{}

	// No-camera notice
	notice      *widget.PopUp
	noticeOK    *widget.Button
	noticeShown atomic.Bool

	resultMu    sync.Mutex
	result      error
	stopCh      chan struct{}
	cleanupOnce sync.Once
}

// NewApp creates the application on the native fyne driver.
func NewApp(cfg *config.Config, opts Options) *App {
	return NewAppWithFyne(app.NewWithID(AppID), cfg, opts)
}

// NewAppWithFyne creates the application on an existing fyne app, such as
// the one from fyne.io/fyne/v2/test.
func NewAppWithFyne(fyneApp fyne.App, cfg *config.Config, opts Options) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		fyneApp: fyneApp,
		window:  fyneApp.NewWindow("Projet Robotique"),
		cfg:     cfg,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
	}
	a.window.Resize(fyne.NewSize(480, 400))
	a.setupUI()
	return a
}

// Start shows the launcher and runs the event loop until the application
// quits. The returned error is the terminal result: camera.ErrNoCamera when
// the user acknowledged the no-camera notice, nil otherwise.
func (a *App) Start() error {
	a.window.Show()
	go a.startHealthLogging()
	a.fyneApp.Run()
	a.cleanup()
	return a.Result()
}

// Result returns the terminal result recorded so far.
func (a *App) Result() error {
	a.resultMu.Lock()
	defer a.resultMu.Unlock()
	return a.result
}

func (a *App) setResult(err error) {
	a.resultMu.Lock()
	a.result = err
	a.resultMu.Unlock()
}

func (a *App) setupUI() {
	// Launcher: a single button leading to the video screen
	title := widget.NewLabelWithStyle("Projet Robotique", fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	a.videoButton = widget.NewButtonWithIcon("Video", theme.MediaVideoIcon(), func() {
		slog.Info("video clicked", "component", "ui")
		a.showVideo()
	})
	a.launcher = container.NewCenter(container.NewVBox(title, a.videoButton))

	// Video screen
	a.video = NewVideoView(a.cfg.TargetWidth, a.cfg.TargetHeight)
	a.video.ShowFPS(a.cfg.ShowFPS)

	a.backButton = widget.NewButtonWithIcon("Back", theme.NavigateBackIcon(), func() {
		slog.Info("back clicked", "component", "ui")
		a.showLauncher()
	})
	toolbar := container.NewHBox(a.backButton)
	if g := a.opts.Gradient; g != nil {
		check := widget.NewCheck("Gradient", g.SetEnabled)
		check.SetChecked(g.Enabled())
		toolbar.Add(check)
	}
	if n := a.opts.NightMode; n != nil {
		check := widget.NewCheck("Night mode", func(on bool) {
			n.SetEnabled(on)
			slog.Info("night mode toggled", "component", "ui", "enabled", on)
		})
		check.SetChecked(n.Enabled())
		toolbar.Add(check)
	}

	background := canvas.NewRectangle(color.RGBA{20, 20, 20, 255})
	a.videoContent = container.NewStack(background, container.NewBorder(toolbar, nil, nil, nil, a.video.Container))

	a.window.SetContent(a.launcher)
	a.window.SetCloseIntercept(a.onCloseRequested)

	// The camera is held only while the video screen is in the foreground
	lc := a.fyneApp.Lifecycle()
	lc.SetOnEnteredForeground(func() {
		if a.onVideo.Load() {
			a.resumeVideo()
		}
	})
	lc.SetOnExitedForeground(func() {
		if a.onVideo.Load() {
			a.pauseVideo()
		}
	})
}

// showVideo switches to the video screen and opens the camera.
func (a *App) showVideo() {
	a.onVideo.Store(true)
	a.window.SetContent(a.videoContent)
	a.resumeVideo()
}

// showLauncher releases the camera and returns to the launcher.
func (a *App) showLauncher() {
	a.onVideo.Store(false)
	a.pauseVideo()
	a.window.SetContent(a.launcher)
}

// resumeVideo opens and configures the camera, then starts displaying frames.
func (a *App) resumeVideo() {
	if a.noticeShown.Load() {
		return
	}

	err := a.opts.Session.Start(a.ctx)
	if errors.Is(err, camera.ErrNoCamera) {
		slog.Warn("no camera available", "component", "ui")
		a.showNoCameraNotice()
		return
	}
	if err != nil {
		slog.Error("camera start failed", "component", "ui", "error", err)
		a.video.SetStatus(fmt.Sprintf("Camera unavailable: %v", err))
		return
	}

	st := a.opts.Session.Status()
	a.video.SetStatus(fmt.Sprintf("%s (%s) %s", st.Camera.Name, st.Camera.Facing, st.PreviewSize))
	a.startRefresh()
}

// pauseVideo stops displaying frames and releases the camera.
func (a *App) pauseVideo() {
	a.stopRefresh()
	a.opts.Session.Stop()
}

// =============================================================================
// No-camera notice
// =============================================================================
// Modal with a single OK action. Nothing else dismisses it: the popup is
// modal and the window close button is ignored while it is visible.
// Acknowledging records camera.ErrNoCamera as the result and quits.
// =============================================================================

func (a *App) showNoCameraNotice() {
	if a.noticeShown.Swap(true) {
		return
	}

	a.noticeOK = widget.NewButton("OK", a.acknowledgeNoCamera)
	a.noticeOK.Importance = widget.HighImportance
	content := container.NewVBox(
		widget.NewLabel(NoCameraMessage),
		container.NewCenter(a.noticeOK),
	)
	a.notice = widget.NewModalPopUp(content, a.window.Canvas())
	a.notice.Show()
}

func (a *App) acknowledgeNoCamera() {
	slog.Info("no-camera notice acknowledged, exiting", "component", "ui")
	a.setResult(camera.ErrNoCamera)
	if a.notice != nil {
		a.notice.Hide()
	}
	a.cleanup()
}

func (a *App) onCloseRequested() {
	if a.noticeShown.Load() {
		slog.Debug("close ignored while no-camera notice is shown", "component", "ui")
		return
	}
	a.cleanup()
}

// =============================================================================
// Frame refresh
// =============================================================================

func (a *App) startRefresh() {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()
	if a.refreshStop != nil {
		return
	}
	a.refreshStop = make(chan struct{})
	a.refreshDone = make(chan struct{})
	go a.refreshLoop(a.refreshStop, a.refreshDone)
}

func (a *App) stopRefresh() {
	a.refreshMu.Lock()
	stop, done := a.refreshStop, a.refreshDone
	a.refreshStop, a.refreshDone = nil, nil
	a.refreshMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// refreshLoop copies new frames from the session's buffer to the screen.
func (a *App) refreshLoop(stop, done chan struct{}) {
	defer close(done)

	uiFPS := a.cfg.UIFPS
	if uiFPS <= 0 {
		uiFPS = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(uiFPS))
	defer ticker.Stop()

	var cursor camera.FrameCursor
	var shown uint64
	var lastFPSUpdate time.Time
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		buffer := a.opts.Session.GetFrameBuffer()
		if buffer == nil {
			continue
		}

		// Only update if there's a new frame (avoids unnecessary refreshes)
		frame, frameNum, hasNew := cursor.Next(buffer)
		if !hasNew {
			continue
		}
		a.video.UpdateFrame(frame)

		if a.cfg.ShowFPS && time.Since(lastFPSUpdate) >= 500*time.Millisecond {
			a.video.SetFPS(buffer.MeasuredFPS())
			lastFPSUpdate = time.Now()
		}

		shown++
		if shown%300 == 1 {
			fps, totalFrames, _ := buffer.GetCaptureStats()
			slog.Debug("frame displayed", "component", "ui", "frame", frameNum,
				"captured", totalFrames, "dropped", buffer.GetDroppedCount(), "avg_fps", fmt.Sprintf("%.1f", fps))
		}
	}
}

// =============================================================================
// Health Logging
// =============================================================================

// startHealthLogging periodically logs the session status.
// Disabled when HealthLogIntervalSec <= 0.
func (a *App) startHealthLogging() {
	interval := a.cfg.HealthLogIntervalSec
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(interval * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.logHealthSummary()
		}
	}
}

func (a *App) logHealthSummary() {
	st := a.opts.Session.Status()
	if !st.Active {
		slog.Info("health", "component", "ui", "active", false, "screen", a.screenName())
		return
	}

	age := "never"
	if !st.LastFrameAt.IsZero() {
		age = time.Since(st.LastFrameAt).Round(time.Millisecond).String()
	}
	slog.Info("health", "component", "ui", "active", true, "session", st.SessionID,
		"camera", st.Camera.DeviceID, "fps_target", st.TargetFPS, "fps_measured", fmt.Sprintf("%.1f", st.MeasuredFPS),
		"frames", st.Frames, "skipped", st.Skipped, "errors", st.Errors, "last_frame_age", age)
}

func (a *App) screenName() string {
	if a.onVideo.Load() {
		return "video"
	}
	return "launcher"
}

// cleanup releases the camera and quits the event loop. Safe to call from
// any goroutine and more than once.
func (a *App) cleanup() {
	a.cleanupOnce.Do(func() {
		slog.Info("cleanup: stopping", "component", "ui")
		close(a.stopCh)
		a.stopRefresh()
		a.opts.Session.Stop()
		a.cancel()
		a.fyneApp.Quit()
	})
}

// Cleanup is exported for external use (e.g., from main)
func (a *App) Cleanup() {
	a.cleanup()
}
