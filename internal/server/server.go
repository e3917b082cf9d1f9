// Package server exposes the processed camera feed over HTTP.
package server

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/ngarneau/projet-robotique/internal/camera"
)

const streamBoundary = "frame"

// Source is the camera session the server reads from.
type Source interface {
	Status() camera.Status
	GetFrameBuffer() *camera.FrameBuffer
}

// HealthResponse is the /healthz payload
type HealthResponse struct {
	Active      bool    `json:"active"`
	SessionID   string  `json:"session_id,omitempty"`
	Camera      string  `json:"camera,omitempty"`
	Facing      string  `json:"facing,omitempty"`
	PreviewSize string  `json:"preview_size,omitempty"`
	TargetFPS   int     `json:"target_fps"`
	MeasuredFPS float64 `json:"measured_fps"`
	Frames      uint64  `json:"frames"`
	Dropped     uint64  `json:"dropped"`
	Uptime      string  `json:"uptime,omitempty"`
}

// Server is the preview HTTP server
type Server struct {
	app      *fiber.App
	addr     string
	source   Source
	interval time.Duration
	quality  int
	done     chan struct{}
}

// New creates a preview server. streamFPS bounds the MJPEG stream rate.
func New(addr string, source Source, streamFPS int) *Server {
	if streamFPS <= 0 {
		streamFPS = 10
	}
	s := &Server{
		addr:     addr,
		source:   source,
		interval: time.Second / time.Duration(streamFPS),
		quality:  80,
		done:     make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "projet-robotique preview",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)
	app.Get("/snapshot.jpg", s.handleSnapshot)
	app.Get("/stream.mjpg", s.handleStream)

	s.app = app
	return s
}

// App returns the underlying fiber app, used by tests.
func (s *Server) App() *fiber.App { return s.app }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("preview server listening", "component", "server", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			slog.Error("preview server stopped", "component", "server", "error", err)
		}
	}()
}

// Shutdown ends open streams and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	st := s.source.Status()
	resp := HealthResponse{
		Active:      st.Active,
		TargetFPS:   st.TargetFPS,
		MeasuredFPS: st.MeasuredFPS,
		Frames:      st.Frames,
		Dropped:     st.Dropped,
	}
	if st.Active {
		resp.SessionID = st.SessionID
		resp.Camera = st.Camera.Name
		resp.Facing = st.Camera.Facing.String()
		resp.PreviewSize = st.PreviewSize.String()
		resp.Uptime = time.Since(st.StartedAt).Round(time.Second).String()
	}
	return c.JSON(resp)
}

func (s *Server) latestFrame() image.Image {
	fb := s.source.GetFrameBuffer()
	if fb == nil {
		return nil
	}
	return fb.Read()
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	img := s.latestFrame()
	if img == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no frame available")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(buf.Bytes())
}

func (s *Server) handleStream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary="+streamBoundary)
	c.Set(fiber.HeaderCacheControl, "no-store")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		s.streamFrames(w, s.done)
	})
	return nil
}

// streamFrames writes MJPEG parts to w until stop is closed or the client
// goes away. It follows the source across camera sessions.
func (s *Server) streamFrames(w *bufio.Writer, stop <-chan struct{}) {
	// Headers only reach the client with the first flush; send the
	// multipart preamble so an idle camera does not leave it waiting.
	if _, err := w.WriteString("\r\n"); err != nil {
		return
	}
	if err := w.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var cursor camera.FrameCursor
	var buf bytes.Buffer
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		img, _, ok := cursor.Next(s.source.GetFrameBuffer())
		if !ok {
			continue
		}

		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
			slog.Warn("stream encode failed", "component", "server", "error", err)
			continue
		}
		if err := writePart(w, buf.Bytes()); err != nil {
			// Client went away
			return
		}
	}
}

func writePart(w *bufio.Writer, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", streamBoundary, len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}
