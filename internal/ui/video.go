package ui

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// VideoView displays the processed frames of the active camera
type VideoView struct {
	CanvasImage *canvas.Image
	Status      *widget.Label
	FPS         *widget.Label
	Container   *fyne.Container

	// Frame management
	frame     image.Image
	frameLock sync.RWMutex
}

// NewVideoView creates the image area with a status line underneath.
func NewVideoView(width, height int) *VideoView {
	v := &VideoView{}

	placeholder := createColoredImage(width, height, color.RGBA{25, 25, 25, 255})
	v.frame = placeholder

	v.CanvasImage = canvas.NewImageFromImage(placeholder)
	v.CanvasImage.FillMode = canvas.ImageFillContain
	v.CanvasImage.ScaleMode = canvas.ImageScaleFastest
	v.CanvasImage.SetMinSize(fyne.NewSize(float32(width), float32(height)))

	v.Status = widget.NewLabel("")
	v.FPS = widget.NewLabel("")
	v.FPS.Hide()

	v.Container = container.NewBorder(nil, container.NewHBox(v.Status, v.FPS), nil, nil, v.CanvasImage)
	return v
}

// UpdateFrame updates the displayed frame
func (v *VideoView) UpdateFrame(img image.Image) {
	if img == nil {
		return
	}

	v.frameLock.Lock()
	v.frame = img
	v.frameLock.Unlock()

	v.CanvasImage.Image = img
	v.CanvasImage.Refresh()
}

// Frame returns the image currently displayed
func (v *VideoView) Frame() image.Image {
	v.frameLock.RLock()
	defer v.frameLock.RUnlock()
	return v.frame
}

// SetStatus updates the status text
func (v *VideoView) SetStatus(status string) {
	v.Status.SetText(status)
}

// ShowFPS toggles the frame rate overlay.
func (v *VideoView) ShowFPS(on bool) {
	if on {
		v.FPS.Show()
	} else {
		v.FPS.Hide()
	}
}

// SetFPS updates the frame rate overlay.
func (v *VideoView) SetFPS(fps float64) {
	v.FPS.SetText(fmt.Sprintf("%.1f fps", fps))
}

func createColoredImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	r, g, b, a := c.RGBA()
	r8, g8, b8, a8 := uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8)

	// Fill first row with direct Pix writes
	stride := img.Stride
	for x := 0; x < width; x++ {
		off := x * 4
		img.Pix[off+0] = r8
		img.Pix[off+1] = g8
		img.Pix[off+2] = b8
		img.Pix[off+3] = a8
	}
	// Copy first row to remaining rows
	firstRow := img.Pix[:stride]
	for y := 1; y < height; y++ {
		copy(img.Pix[y*stride:(y+1)*stride], firstRow)
	}
	return img
}
