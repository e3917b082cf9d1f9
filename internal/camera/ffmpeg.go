package camera

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFmpegEnumerator captures through an ffmpeg child process reading the V4L2 node.
type FFmpegEnumerator struct {
	cameras  []Camera
	settings Settings
}

func (e *FFmpegEnumerator) NumberOfCameras() int { return len(e.cameras) }

func (e *FFmpegEnumerator) CameraInfo(index int) (Camera, error) {
	return cameraAt(e.cameras, index)
}

func (e *FFmpegEnumerator) Open(index int) (Device, error) {
	cam, err := cameraAt(e.cameras, index)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &ffmpegDevice{cam: cam, fps: e.settings.FPS, format: e.settings.Format}, nil
}

type ffmpegDevice struct {
	cam    Camera
	fps    int
	format string
	size   Size

	mu  sync.Mutex
	cmd *exec.Cmd
}

// SupportedPreviewSizes asks ffmpeg for the device's format list, keeping
// the sizes of the configured encoding first.
func (d *ffmpegDevice) SupportedPreviewSizes() ([]Size, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// ffmpeg exits non-zero after listing; only the output matters
	out, _ := exec.CommandContext(ctx, "ffmpeg", "-hide_banner",
		"-f", "v4l2", "-list_formats", "all", "-i", d.cam.DevicePath).CombinedOutput()

	sizes := parseFFmpegFormats(string(out), d.format)
	if len(sizes) == 0 {
		return nil, ErrNoPreviewSizes
	}
	return sizes, nil
}

var (
	ffmpegFormatLine = regexp.MustCompile(`(Compressed|Raw)\s*:\s*(\S+)\s*:.*:\s*([0-9x ]+)$`)
	ffmpegSizeToken  = regexp.MustCompile(`(\d+)x(\d+)`)
)

// parseFFmpegFormats extracts the frame sizes from `ffmpeg -list_formats all`
// output, e.g.
//
//	[video4linux2,v4l2 @ 0x55] Compressed:       mjpeg :          Motion-JPEG : 1280x720 640x480 320x240
//
// Lines whose pixel format matches preferred ("mjpeg" or "yuyv") come first.
func parseFFmpegFormats(output, preferred string) []Size {
	var first, rest []Size

	for _, line := range strings.Split(output, "\n") {
		m := ffmpegFormatLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		isPreferred := strings.HasPrefix(strings.ToLower(m[2]), preferred)
		for _, tok := range ffmpegSizeToken.FindAllStringSubmatch(m[3], -1) {
			w, _ := strconv.Atoi(tok[1])
			h, _ := strconv.Atoi(tok[2])
			if w <= 0 || h <= 0 {
				continue
			}
			if isPreferred {
				first = append(first, Size{w, h})
			} else {
				rest = append(rest, Size{w, h})
			}
		}
	}

	seen := make(map[Size]bool)
	var sizes []Size
	for _, s := range append(first, rest...) {
		if !seen[s] {
			seen[s] = true
			sizes = append(sizes, s)
		}
	}
	return sizes
}

func (d *ffmpegDevice) SetPreviewSize(s Size) error {
	d.size = s
	return nil
}

func (d *ffmpegDevice) PreviewSize() Size { return d.size }

// ffmpegArgs builds the capture command line. The configured input format is
// requested; ffmpeg re-encodes to MJPEG on stdout either way.
func (d *ffmpegDevice) ffmpegArgs() []string {
	inputFormat := "mjpeg"
	if d.format == "yuyv" {
		inputFormat = "yuyv422"
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-thread_queue_size", "512", "-probesize", "32", "-analyzeduration", "0",
		"-f", "v4l2", "-input_format", inputFormat,
		"-video_size", d.size.String(),
		"-framerate", strconv.Itoa(d.fps),
		"-i", d.cam.DevicePath,
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-",
	}
}

func (d *ffmpegDevice) Start(ctx context.Context) (<-chan Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil {
		return nil, ErrWorkerRunning
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", d.ffmpegArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}
	d.cmd = cmd

	slog.Info("ffmpeg started", "component", "camera",
		"device", d.cam.DevicePath, "size", d.size.String(), "fps", d.fps, "pid", cmd.Process.Pid)

	out := make(chan Frame, 1)
	go d.readLoop(ctx, stdout, out)
	return out, nil
}

func (d *ffmpegDevice) readLoop(ctx context.Context, stdout io.Reader, out chan<- Frame) {
	defer close(out)
	splitter := newMJPEGSplitter(stdout, 0)

	var seq uint64
	for {
		jpegData, err := splitter.Next()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				slog.Warn("ffmpeg stream error", "component", "camera", "device", d.cam.DevicePath, "error", err)
			}
			return
		}
		seq++
		select {
		case out <- Frame{Data: jpegData, Format: FormatMJPEG, Width: d.size.Width, Height: d.size.Height, Seq: seq, CapturedAt: time.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

// Close kills and reaps the ffmpeg process.
func (d *ffmpegDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil {
		return nil
	}
	if d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.cmd.Wait()
	d.cmd = nil
	return nil
}
