package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// DecodeFrame converts a raw frame into an image. RGBA and YUYV frames
// wrap or copy the data without colour conversion.
func DecodeFrame(f Frame) (image.Image, error) {
	switch f.Format {
	case FormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(f.Data))
		if err != nil {
			return nil, fmt.Errorf("decode mjpeg: %w", err)
		}
		return img, nil
	case FormatYUYV:
		return decodeYUYV(f.Data, f.Width, f.Height)
	case FormatRGBA:
		if len(f.Data) < f.Width*f.Height*4 {
			return nil, fmt.Errorf("decode rgba: %d bytes for %dx%d", len(f.Data), f.Width, f.Height)
		}
		return &image.RGBA{
			Pix:    f.Data,
			Stride: f.Width * 4,
			Rect:   image.Rect(0, 0, f.Width, f.Height),
		}, nil
	}
	return nil, fmt.Errorf("decode: unsupported pixel format %s", f.Format)
}

// decodeYUYV unpacks Y0 U Y1 V byte quads into a 4:2:2 YCbCr image.
func decodeYUYV(data []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, fmt.Errorf("decode yuyv: invalid size %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, fmt.Errorf("decode yuyv: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		src := data[y*width*2 : (y+1)*width*2]
		yRow := img.Y[y*img.YStride:]
		cRow := y * img.CStride
		for x := 0; x < width; x += 2 {
			q := src[x*2 : x*2+4]
			yRow[x] = q[0]
			yRow[x+1] = q[2]
			img.Cb[cRow+x/2] = q[1]
			img.Cr[cRow+x/2] = q[3]
		}
	}
	return img, nil
}
