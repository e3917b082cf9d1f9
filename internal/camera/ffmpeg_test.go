package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const ffmpegListing = `[video4linux2,v4l2 @ 0x55d0c8a0] Raw       :     yuyv422 :           YUYV 4:2:2 : 640x480 320x240 160x120
[video4linux2,v4l2 @ 0x55d0c8a0] Compressed:       mjpeg :          Motion-JPEG : 1280x720 640x480 352x288
/dev/video0: Immediate exit requested`

func TestParseFFmpegFormats(t *testing.T) {
	got := parseFFmpegFormats(ffmpegListing, "mjpeg")
	assert.Equal(t, []Size{{1280, 720}, {640, 480}, {352, 288}, {320, 240}, {160, 120}}, got)

	got = parseFFmpegFormats(ffmpegListing, "yuyv")
	assert.Equal(t, []Size{{640, 480}, {320, 240}, {160, 120}, {1280, 720}, {352, 288}}, got)
}

func TestParseFFmpegFormatsEmpty(t *testing.T) {
	assert.Empty(t, parseFFmpegFormats("/dev/video9: No such file or directory", "mjpeg"))
}

func TestFFmpegArgs(t *testing.T) {
	d := &ffmpegDevice{
		cam:    Camera{DevicePath: "/dev/video2"},
		fps:    10,
		format: "yuyv",
		size:   Size{320, 240},
	}
	args := d.ffmpegArgs()
	assert.Contains(t, args, "yuyv422")
	assert.Contains(t, args, "320x240")
	assert.Contains(t, args, "/dev/video2")
	assert.Equal(t, "-", args[len(args)-1])
}
