package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ngarneau/projet-robotique/internal/camera"
	"github.com/ngarneau/projet-robotique/internal/config"
	"github.com/ngarneau/projet-robotique/internal/perf"
	"github.com/ngarneau/projet-robotique/internal/server"
	"github.com/ngarneau/projet-robotique/internal/ui"
	"github.com/ngarneau/projet-robotique/internal/vision"
)

// Version information - set by linker flags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Command line flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	configPath := flag.String("config", "", "Path to config.ini (default: ./config.ini or $PROJET_ROBOTIQUE_CONFIG)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Projet Robotique %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Go version: %s\n", GoVersion)
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return 0
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Warn("config load error, using defaults", "component", "main", "error", err)
		cfg = config.DefaultConfig()
	}

	// Configure logging (rotating file + optional stdout)
	logCleanup, err := config.ConfigureLogging(cfg)
	if err != nil {
		slog.Warn("logging setup error", "component", "main", "error", err)
	}
	if logCleanup != nil {
		defer logCleanup()
	}

	slog.Info("starting", "component", "main", "version", Version,
		"backend", cfg.CameraBackend, "target", fmt.Sprintf("%dx%d", cfg.TargetWidth, cfg.TargetHeight),
		"fps", cfg.CaptureFPS, "dynamic_fps", cfg.DynamicFPSEnabled)

	ok, warnings := cfg.Validate()
	for _, w := range warnings {
		slog.Warn(w, "component", "main")
	}
	if !ok {
		slog.Warn("config validation failed", "component", "main")
	}

	enum, err := camera.NewEnumerator(cameraSettings(cfg))
	if err != nil {
		slog.Error("camera backend unavailable", "component", "main", "error", err)
		return 1
	}

	gradient := vision.NewGradient()
	nightMode := vision.NewNightMode(cfg.NightMode)
	manager := camera.NewManager(enum, camera.ManagerOptions{
		Target:            camera.Size{Width: cfg.TargetWidth, Height: cfg.TargetHeight},
		CaptureFPS:        cfg.CaptureFPS,
		Processor:         vision.Chain{gradient, nightMode},
		KillDeviceHolders: cfg.KillDeviceHolders,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DynamicFPSEnabled {
		controller := perf.NewAdaptiveController(perf.NewMonitor(), manager, perf.Settings{
			Interval:         time.Duration(cfg.PerfCheckIntervalMS) * time.Millisecond,
			MinFPS:           cfg.MinDynamicFPS,
			Step:             cfg.FPSStep,
			LoadThreshold:    cfg.CPULoadThreshold,
			TempThreshold:    cfg.CPUTempThresholdC,
			StressHoldCount:  cfg.StressHoldCount,
			RecoverHoldCount: cfg.RecoverHoldCount,
		})
		controller.Start(ctx)
		defer controller.Stop()
	}

	if cfg.ServerEnabled {
		srv := server.New(cfg.ServerListen, manager, cfg.UIFPS)
		srv.StartAsync()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("preview server shutdown", "component", "main", "error", err)
			}
		}()
	}

	app := ui.NewApp(cfg, ui.Options{
		Session:   manager,
		Gradient:  gradient,
		NightMode: nightMode,
	})

	// Setup signal handling for clean shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("signal received, cleaning up", "component", "main", "signal", sig.String())
			app.Cleanup()
		case <-ctx.Done():
		}
	}()

	result := app.Start()
	code := exitCode(result)
	slog.Info("exiting", "component", "main", "code", code, "result", result)
	return code
}

// exitCode maps the terminal UI result to the process status. Acknowledging
// the no-camera notice is a normal exit.
func exitCode(result error) int {
	if result == nil || errors.Is(result, camera.ErrNoCamera) {
		return 0
	}
	return 1
}

// cameraSettings maps the configuration onto the capture back-end settings.
func cameraSettings(cfg *config.Config) camera.Settings {
	s := camera.Settings{
		Backend:         cfg.CameraBackend,
		FPS:             cfg.CaptureFPS,
		Format:          cfg.CaptureFormat,
		FacingOverrides: cfg.FacingOverrides,
	}
	for _, name := range cfg.SyntheticFacings {
		if f, ok := camera.ParseFacing(name); ok {
			s.SyntheticFacings = append(s.SyntheticFacings, f)
		}
	}
	return s
}
