package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngarneau/projet-robotique/internal/camera"
)

type fakeSource struct {
	status camera.Status
	buffer *camera.FrameBuffer
}

func (f *fakeSource) Status() camera.Status               { return f.status }
func (f *fakeSource) GetFrameBuffer() *camera.FrameBuffer { return f.buffer }

// sessionSource swaps buffers the way Manager does on every restart.
type sessionSource struct {
	mu     sync.Mutex
	buffer *camera.FrameBuffer
}

func (s *sessionSource) Status() camera.Status { return camera.Status{} }

func (s *sessionSource) GetFrameBuffer() *camera.FrameBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

func (s *sessionSource) setBuffer(fb *camera.FrameBuffer) {
	s.mu.Lock()
	s.buffer = fb
	s.mu.Unlock()
}

func TestHealthInactive(t *testing.T) {
	s := New("127.0.0.1:0", &fakeSource{status: camera.Status{MaxFPS: 15}}, 10)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Active)
	assert.Empty(t, body.SessionID)
}

func TestHealthActive(t *testing.T) {
	src := &fakeSource{status: camera.Status{
		Active:      true,
		SessionID:   "abc",
		Camera:      camera.Camera{Name: "USB Camera", Facing: camera.FacingBack},
		PreviewSize: camera.Size{Width: 320, Height: 240},
		TargetFPS:   12,
		Frames:      42,
		StartedAt:   time.Now().Add(-time.Minute),
	}}
	s := New("127.0.0.1:0", src, 10)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Active)
	assert.Equal(t, "abc", body.SessionID)
	assert.Equal(t, "USB Camera", body.Camera)
	assert.Equal(t, "back", body.Facing)
	assert.Equal(t, "320x240", body.PreviewSize)
	assert.Equal(t, 12, body.TargetFPS)
	assert.Equal(t, uint64(42), body.Frames)
}

func TestSnapshotWithoutFrame(t *testing.T) {
	s := New("127.0.0.1:0", &fakeSource{}, 10)
	resp, err := s.App().Test(httptest.NewRequest("GET", "/snapshot.jpg", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	s = New("127.0.0.1:0", &fakeSource{buffer: camera.NewFrameBuffer()}, 10)
	resp, err = s.App().Test(httptest.NewRequest("GET", "/snapshot.jpg", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestSnapshot(t *testing.T) {
	fb := camera.NewFrameBuffer()
	fb.Write(image.NewRGBA(image.Rect(0, 0, 32, 24)))
	s := New("127.0.0.1:0", &fakeSource{buffer: fb}, 10)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/snapshot.jpg", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())
}

func TestWritePart(t *testing.T) {
	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	require.NoError(t, writePart(w, []byte{0xFF, 0xD8, 0xFF, 0xD9}))

	assert.Equal(t, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 4\r\n\r\n\xff\xd8\xff\xd9\r\n", out.String())
}

// readPart reads one multipart section written by writePart.
func readPart(r *bufio.Reader) ([]byte, error) {
	tp := textproto.NewReader(r)
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == "--"+streamBoundary {
			break
		}
	}
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(header.Get("Content-Length"))
	if err != nil {
		return nil, err
	}
	body := make([]byte, n+2)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body[:n], nil
}

func framesOf(width, height, n int) *camera.FrameBuffer {
	fb := camera.NewFrameBuffer()
	for i := 0; i < n; i++ {
		fb.Write(image.NewRGBA(image.Rect(0, 0, width, height)))
	}
	return fb
}

func TestStreamFollowsSessionRestart(t *testing.T) {
	src := &sessionSource{}
	s := New("127.0.0.1:0", src, 50)

	pr, pw := io.Pipe()
	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		s.streamFrames(bufio.NewWriter(pw), stop)
		pw.Close()
	}()
	defer func() {
		close(stop)
		pr.Close()
		<-finished
	}()

	r := bufio.NewReader(pr)
	type result struct {
		data []byte
		err  error
	}
	next := func() []byte {
		ch := make(chan result, 1)
		go func() {
			data, err := readPart(r)
			ch <- result{data, err}
		}()
		select {
		case res := <-ch:
			require.NoError(t, res.err)
			return res.data
		case <-time.After(2 * time.Second):
			t.Fatal("no frame streamed")
			return nil
		}
	}

	// The preamble is flushed before any camera session exists
	preamble := make(chan error, 1)
	go func() {
		b := make([]byte, 2)
		_, err := io.ReadFull(r, b)
		preamble <- err
	}()
	select {
	case err := <-preamble:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream sent nothing while idle")
	}

	src.setBuffer(framesOf(16, 16, 10))
	img, err := jpeg.Decode(bytes.NewReader(next()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())

	// A new session starts counting from 1 again
	src.setBuffer(framesOf(32, 24, 3))
	img, err = jpeg.Decode(bytes.NewReader(next()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())
}
