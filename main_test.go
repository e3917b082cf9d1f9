package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ngarneau/projet-robotique/internal/camera"
	"github.com/ngarneau/projet-robotique/internal/config"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name   string
		result error
		want   int
	}{
		{"normal quit", nil, 0},
		{"no camera acknowledged", camera.ErrNoCamera, 0},
		{"wrapped no camera", fmt.Errorf("video: %w", camera.ErrNoCamera), 0},
		{"other failure", errors.New("backend crashed"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.result))
		})
	}
}

func TestCameraSettingsSkipsUnknownFacings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CameraBackend = "synthetic"
	cfg.SyntheticFacings = []string{"front", "sideways", "back"}

	s := cameraSettings(cfg)
	assert.Equal(t, "synthetic", s.Backend)
	assert.Equal(t, []camera.Facing{camera.FacingFront, camera.FacingBack}, s.SyntheticFacings)
}
