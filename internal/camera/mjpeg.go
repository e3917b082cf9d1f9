package camera

import (
	"fmt"
	"io"
	"time"
)

// mjpegSplitter cuts a concatenated JPEG stream (ffmpeg image2pipe output)
// into individual JPEG images using the SOI (FFD8) and EOI (FFD9) markers.
type mjpegSplitter struct {
	reader    io.Reader
	buffer    []byte
	frameData []byte
	// frameTimeout bounds the time spent assembling one frame. Zero disables it.
	frameTimeout time.Duration
}

func newMJPEGSplitter(r io.Reader, frameTimeout time.Duration) *mjpegSplitter {
	return &mjpegSplitter{
		reader:       r,
		buffer:       make([]byte, 8192),
		frameData:    make([]byte, 0, 65536),
		frameTimeout: frameTimeout,
	}
}

func (s *mjpegSplitter) timedOut(start time.Time) bool {
	return s.frameTimeout > 0 && time.Since(start) > s.frameTimeout
}

// Next returns the next complete JPEG image. Bytes after the EOI marker are
// kept for the following call. io.EOF is returned once the stream is drained.
func (s *mjpegSplitter) Next() ([]byte, error) {
	frameStart := time.Now()

	// Find SOI marker (0xFFD8)
	for {
		if soi := indexMarker(s.frameData, 0xD8, 0); soi >= 0 {
			s.frameData = s.frameData[soi:]
			break
		}
		if s.timedOut(frameStart) {
			s.frameData = s.frameData[:0]
			return nil, fmt.Errorf("timeout finding SOI marker")
		}

		// Keep a trailing 0xFF in case the marker straddles two reads
		if n := len(s.frameData); n > 0 && s.frameData[n-1] == 0xFF {
			s.frameData = append(s.frameData[:0], 0xFF)
		} else {
			s.frameData = s.frameData[:0]
		}

		if err := s.fill(); err != nil {
			return nil, err
		}
	}

	// Find EOI marker (0xFFD9)
	for {
		if eoi := indexMarker(s.frameData, 0xD9, 2); eoi >= 0 {
			end := eoi + 2
			jpegData := make([]byte, end)
			copy(jpegData, s.frameData[:end])

			remaining := s.frameData[end:]
			s.frameData = append(s.frameData[:0], remaining...)
			return jpegData, nil
		}
		if s.timedOut(frameStart) {
			s.frameData = s.frameData[:0]
			return nil, fmt.Errorf("timeout finding EOI marker")
		}
		if len(s.frameData) > 4*1024*1024 {
			s.frameData = s.frameData[:0]
			return nil, fmt.Errorf("jpeg frame exceeds 4 MiB")
		}

		if err := s.fill(); err != nil {
			return nil, err
		}
	}
}

func (s *mjpegSplitter) fill() error {
	n, err := s.reader.Read(s.buffer)
	if n > 0 {
		s.frameData = append(s.frameData, s.buffer[:n]...)
		return nil
	}
	if err == nil {
		return nil
	}
	return err
}

// indexMarker returns the offset of the first 0xFF,marker pair at or after from.
func indexMarker(data []byte, marker byte, from int) int {
	for i := from; i+1 < len(data); i++ {
		if data[i] == 0xFF && data[i+1] == marker {
			return i
		}
	}
	return -1
}
