package perf

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FPSTarget is the capture rate the controller steers.
type FPSTarget interface {
	SetFPS(fps int) error
	GetFPS() int
	MaxFPS() int
}

// Settings tunes the controller.
type Settings struct {
	Interval         time.Duration
	MinFPS           int
	Step             int
	LoadThreshold    float64
	TempThreshold    float64
	StressHoldCount  int
	RecoverHoldCount int
}

// AdaptiveController lowers the capture rate while the host is stressed and
// restores it once readings are calm again.
type AdaptiveController struct {
	sampler  Sampler
	target   FPSTarget
	settings Settings

	// Control state
	isUnderStress bool
	stressCount   int
	recoveryCount int
	lastSample    Sample

	mutex  sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAdaptiveController creates a new adaptive performance controller
func NewAdaptiveController(sampler Sampler, target FPSTarget, s Settings) *AdaptiveController {
	if s.Interval <= 0 {
		s.Interval = 2 * time.Second
	}
	if s.MinFPS < 1 {
		s.MinFPS = 1
	}
	if s.Step < 1 {
		s.Step = 2
	}
	if s.StressHoldCount < 1 {
		s.StressHoldCount = 1
	}
	if s.RecoverHoldCount < 1 {
		s.RecoverHoldCount = 1
	}
	return &AdaptiveController{sampler: sampler, target: target, settings: s}
}

// Start begins performance monitoring and adaptation
func (ac *AdaptiveController) Start(ctx context.Context) {
	ac.mutex.Lock()
	defer ac.mutex.Unlock()
	if ac.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ac.cancel = cancel
	ac.done = make(chan struct{})
	go ac.adaptationLoop(loopCtx, ac.done)
}

// Stop ends the adaptation loop and waits for it to exit.
func (ac *AdaptiveController) Stop() {
	ac.mutex.Lock()
	cancel, done := ac.cancel, ac.done
	ac.cancel = nil
	ac.mutex.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// adaptationLoop runs the main performance adaptation logic
func (ac *AdaptiveController) adaptationLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(ac.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := ac.sampler.Sample()
		if err != nil {
			slog.Debug("perf sample failed", "component", "perf", "error", err)
			continue
		}
		ac.Observe(sample)
	}
}

// Observe feeds one reading to the controller and adjusts the target FPS.
func (ac *AdaptiveController) Observe(s Sample) {
	ac.mutex.Lock()
	defer ac.mutex.Unlock()

	ac.lastSample = s
	stressed := s.LoadAverage > ac.settings.LoadThreshold ||
		(ac.settings.TempThreshold > 0 && s.Temperature > ac.settings.TempThreshold)

	if stressed {
		ac.recoveryCount = 0
		ac.stressCount++
		if ac.stressCount >= ac.settings.StressHoldCount {
			ac.isUnderStress = true
			ac.stressCount = 0
			ac.adjust(-ac.settings.Step, s)
		}
		return
	}

	ac.stressCount = 0
	ac.recoveryCount++
	if ac.recoveryCount >= ac.settings.RecoverHoldCount {
		ac.recoveryCount = 0
		if ac.target.GetFPS() < ac.target.MaxFPS() {
			ac.adjust(ac.settings.Step, s)
		}
		if ac.target.GetFPS() >= ac.target.MaxFPS() {
			ac.isUnderStress = false
		}
	}
}

// adjust moves the target FPS by delta within [MinFPS, MaxFPS].
func (ac *AdaptiveController) adjust(delta int, s Sample) {
	current := ac.target.GetFPS()
	if current == 0 {
		return // no active session
	}
	newFPS := current + delta
	if newFPS < ac.settings.MinFPS {
		newFPS = ac.settings.MinFPS
	}
	if maxFPS := ac.target.MaxFPS(); newFPS > maxFPS {
		newFPS = maxFPS
	}
	if newFPS == current {
		return
	}

	if err := ac.target.SetFPS(newFPS); err != nil {
		slog.Debug("fps change skipped", "component", "perf", "error", err)
		return
	}
	slog.Info("adaptive fps", "component", "perf",
		"from", current, "to", newFPS, "load", s.LoadAverage, "temp_c", s.Temperature)
}

// GetSystemStatus returns the last reading and whether the host is stressed
func (ac *AdaptiveController) GetSystemStatus() (load, temp float64, stressed bool) {
	ac.mutex.RLock()
	defer ac.mutex.RUnlock()
	return ac.lastSample.LoadAverage, ac.lastSample.Temperature, ac.isUnderStress
}
