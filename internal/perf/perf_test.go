package perf

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mu  sync.Mutex
	fps int
	max int
}

func (f *fakeTarget) SetFPS(fps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fps = fps
	return nil
}

func (f *fakeTarget) GetFPS() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fps
}

func (f *fakeTarget) MaxFPS() int { return f.max }

func testSettings() Settings {
	return Settings{MinFPS: 5, Step: 2, LoadThreshold: 3, TempThreshold: 75, StressHoldCount: 2, RecoverHoldCount: 3}
}

var (
	calm     = Sample{LoadAverage: 0.5, Temperature: 40}
	overload = Sample{LoadAverage: 8}
	hot      = Sample{LoadAverage: 0.5, Temperature: 90}
)

func TestAdaptiveReducesAfterHold(t *testing.T) {
	target := &fakeTarget{fps: 15, max: 15}
	ac := NewAdaptiveController(nil, target, testSettings())

	ac.Observe(overload)
	assert.Equal(t, 15, target.GetFPS(), "single reading is not enough")

	ac.Observe(hot)
	assert.Equal(t, 13, target.GetFPS())
	_, _, stressed := ac.GetSystemStatus()
	assert.True(t, stressed)
}

func TestAdaptiveRespectsMinimum(t *testing.T) {
	target := &fakeTarget{fps: 6, max: 15}
	ac := NewAdaptiveController(nil, target, testSettings())

	for i := 0; i < 10; i++ {
		ac.Observe(overload)
	}
	assert.Equal(t, 5, target.GetFPS())
}

func TestAdaptiveRecovers(t *testing.T) {
	target := &fakeTarget{fps: 11, max: 12}
	ac := NewAdaptiveController(nil, target, testSettings())

	ac.Observe(calm)
	ac.Observe(calm)
	assert.Equal(t, 11, target.GetFPS())

	ac.Observe(calm)
	assert.Equal(t, 12, target.GetFPS(), "clamped to max")
	_, _, stressed := ac.GetSystemStatus()
	assert.False(t, stressed)
}

func TestAdaptiveStressResetsRecovery(t *testing.T) {
	target := &fakeTarget{fps: 9, max: 15}
	ac := NewAdaptiveController(nil, target, testSettings())

	ac.Observe(calm)
	ac.Observe(calm)
	ac.Observe(overload)
	ac.Observe(calm)
	assert.Equal(t, 9, target.GetFPS())
}

func TestAdaptiveIgnoresInactiveTarget(t *testing.T) {
	target := &fakeTarget{fps: 0, max: 15}
	ac := NewAdaptiveController(nil, target, testSettings())
	for i := 0; i < 4; i++ {
		ac.Observe(overload)
	}
	assert.Zero(t, target.GetFPS())
}

type staticSampler struct{ s Sample }

func (s staticSampler) Sample() (Sample, error) { return s.s, nil }

func TestAdaptiveLoop(t *testing.T) {
	target := &fakeTarget{fps: 15, max: 15}
	settings := testSettings()
	settings.Interval = 5 * time.Millisecond
	settings.StressHoldCount = 1

	ac := NewAdaptiveController(staticSampler{overload}, target, settings)
	ac.Start(context.Background())
	require.Eventually(t, func() bool { return target.GetFPS() == 5 }, time.Second, 5*time.Millisecond)
	ac.Stop()
	ac.Stop()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMonitorSample(t *testing.T) {
	proc, sys := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(proc, "loadavg"), "1.25 0.80 0.50 2/300 1234\n")
	writeFile(t, filepath.Join(proc, "meminfo"), "MemTotal:       1000 kB\nMemFree:  100 kB\nMemAvailable:    250 kB\n")
	writeFile(t, filepath.Join(sys, "class", "thermal", "thermal_zone0", "temp"), "50000\n")
	writeFile(t, filepath.Join(sys, "class", "thermal", "thermal_zone1", "temp"), "60000\n")

	m := NewMonitorAt(proc, sys)
	s, err := m.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 1.25, s.LoadAverage, 1e-9)
	assert.InDelta(t, 55.0, s.Temperature, 1e-9)
	assert.InDelta(t, 75.0, s.MemoryUsage, 1e-9)
	assert.Equal(t, s, m.Last())
}

func TestMonitorWithoutSensors(t *testing.T) {
	proc := t.TempDir()
	writeFile(t, filepath.Join(proc, "loadavg"), "0.10 0.10 0.10 1/100 1\n")

	s, err := NewMonitorAt(proc, t.TempDir()).Sample()
	require.NoError(t, err)
	assert.Zero(t, s.Temperature)
	assert.Zero(t, s.MemoryUsage)
}

func TestMonitorBadLoadAverage(t *testing.T) {
	proc := t.TempDir()
	writeFile(t, filepath.Join(proc, "loadavg"), "   \n")

	_, err := NewMonitorAt(proc, t.TempDir()).Sample()
	assert.ErrorIs(t, err, ErrInvalidLoadAverage)
}
