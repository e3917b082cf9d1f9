package camera

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBufferReadIfNew(t *testing.T) {
	fb := NewFrameBuffer()

	_, last, ok := fb.ReadIfNew(0)
	assert.False(t, ok)
	assert.Zero(t, last)
	assert.Nil(t, fb.Read())

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	fb.Write(img)

	got, last, ok := fb.ReadIfNew(0)
	require.True(t, ok)
	assert.Same(t, img, got)
	assert.Equal(t, uint64(1), last)

	_, _, ok = fb.ReadIfNew(last)
	assert.False(t, ok, "no new frame since last read")
	assert.False(t, fb.GetLastFrameTime().IsZero())
}

func TestFrameBufferMeasuredFPS(t *testing.T) {
	fb := NewFrameBuffer()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	fb.Write(img)
	assert.Zero(t, fb.MeasuredFPS(), "one frame has no rate")

	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		fb.Write(img)
	}
	fps := fb.MeasuredFPS()
	assert.Greater(t, fps, 5.0)
	assert.Less(t, fps, 150.0)
}

func TestFrameBufferDropped(t *testing.T) {
	fb := NewFrameBuffer()
	fb.MarkDropped()
	fb.MarkDropped()
	assert.Equal(t, uint64(2), fb.GetDroppedCount())
}

func TestFrameCursorFollowsNewBuffer(t *testing.T) {
	var c FrameCursor
	_, _, ok := c.Next(nil)
	assert.False(t, ok)

	first := NewFrameBuffer()
	for i := 0; i < 10; i++ {
		first.Write(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	}
	_, seq, ok := c.Next(first)
	require.True(t, ok)
	assert.Equal(t, uint64(10), seq)
	_, _, ok = c.Next(first)
	assert.False(t, ok)

	second := NewFrameBuffer()
	want := image.NewRGBA(image.Rect(0, 0, 8, 8))
	second.Write(want)
	got, seq, ok := c.Next(second)
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)
	assert.Same(t, want, got)
}
