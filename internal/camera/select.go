package camera

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoCamera is returned when the host reports no usable camera.
var ErrNoCamera = errors.New("camera: no camera available")

// SelectCamera returns the index of the first back-facing camera. Without
// one, the last camera examined wins, which by elimination is front-facing.
func SelectCamera(cameras []Camera) (int, error) {
	selected := -1
	for i, cam := range cameras {
		selected = i
		if cam.Facing == FacingBack {
			break
		}
	}
	if selected == -1 {
		return -1, ErrNoCamera
	}
	return selected, nil
}

// SelectAndOpen enumerates the cameras known to e, applies SelectCamera and
// opens the winner. Cameras whose info cannot be read are skipped.
func SelectAndOpen(e Enumerator) (Device, Camera, error) {
	count := e.NumberOfCameras()

	cameras := make([]Camera, 0, count)
	for i := 0; i < count; i++ {
		info, err := e.CameraInfo(i)
		if err != nil {
			slog.Warn("skipping camera", "component", "camera", "index", i, "error", err)
			continue
		}
		cameras = append(cameras, info)
	}

	selected, err := SelectCamera(cameras)
	if err != nil {
		return nil, Camera{}, err
	}

	cam := cameras[selected]
	dev, err := e.Open(cam.Index)
	if err != nil {
		return nil, cam, fmt.Errorf("open %s: %w", cam.DeviceID, err)
	}
	return dev, cam, nil
}
