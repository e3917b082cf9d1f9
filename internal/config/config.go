// Package config manages configuration for Projet Robotique.
//
// Handles loading config from INI files, environment variables,
// and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// Configuration struct
// =============================================================================

// Config holds all runtime configuration values.
type Config struct {
	// Logging
	LogLevel       string
	LogFile        string
	LogMaxBytes    int
	LogBackupCount int
	LogToStdout    bool

	// Camera
	CameraBackend     string // "v4l2", "ffmpeg" or "synthetic"
	TargetWidth       int
	TargetHeight      int
	CaptureFPS        int
	CaptureFormat     string // "mjpeg" or "yuyv"
	KillDeviceHolders bool
	// FacingOverrides maps a device id (e.g. "video0") to "front" or "back".
	FacingOverrides map[string]string
	// SyntheticFacings lists the facings of the synthetic back-end's cameras,
	// in enumeration order. Empty means the synthetic back-end reports no camera.
	SyntheticFacings []string

	// UI
	UIFPS     int
	ShowFPS   bool
	NightMode bool

	// Performance
	DynamicFPSEnabled   bool
	PerfCheckIntervalMS int
	MinDynamicFPS       int
	FPSStep             int
	CPULoadThreshold    float64
	CPUTempThresholdC   float64
	StressHoldCount     int
	RecoverHoldCount    int

	// Preview server
	ServerEnabled bool
	ServerListen  string

	// Health
	HealthLogIntervalSec float64
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		// Logging
		LogLevel:       "INFO",
		LogFile:        "./logs/projet_robotique.log",
		LogMaxBytes:    5 * 1024 * 1024, // 5 MB
		LogBackupCount: 3,
		LogToStdout:    true,

		// Camera: small previews keep the gradient cheap
		CameraBackend:     "v4l2",
		TargetWidth:       320,
		TargetHeight:      240,
		CaptureFPS:        15,
		CaptureFormat:     "mjpeg",
		KillDeviceHolders: false,
		FacingOverrides:   map[string]string{},
		SyntheticFacings:  []string{"back"},

		// UI
		UIFPS:     20,
		ShowFPS:   false,
		NightMode: false,

		// Performance
		DynamicFPSEnabled:   true,
		PerfCheckIntervalMS: 2000,
		MinDynamicFPS:       5,
		FPSStep:             2,
		CPULoadThreshold:    3.0,
		CPUTempThresholdC:   75.0,
		StressHoldCount:     3,
		RecoverHoldCount:    3,

		// Preview server
		ServerEnabled: false,
		ServerListen:  "127.0.0.1:8089",

		// Health
		HealthLogIntervalSec: 30.0,
	}
}

// =============================================================================
// INI parser (minimal, no external deps)
// =============================================================================

// iniData stores parsed INI sections and their key-value pairs.
type iniData map[string]map[string]string

// parseINI reads an INI file and returns its sections and key-value pairs.
// Supports comments (# and ;), sections ([name]), and key = value lines.
func parseINI(path string) (iniData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseINIString(string(data)), nil
}

func parseINIString(data string) iniData {
	result := make(iniData)
	currentSection := ""

	for _, rawLine := range strings.Split(data, "\n") {
		line := strings.TrimSpace(rawLine)

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		// Section header
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if _, ok := result[currentSection]; !ok {
				result[currentSection] = make(map[string]string)
			}
			continue
		}

		// Key = value
		if idx := strings.IndexByte(line, '='); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			if currentSection != "" {
				result[currentSection][key] = value
			}
		}
	}

	return result
}

// get returns a value from the parsed INI data, or empty string if not found.
func (d iniData) get(section, key string) (string, bool) {
	if sec, ok := d[section]; ok {
		if val, ok := sec[key]; ok {
			return val, true
		}
	}
	return "", false
}

// hasSection returns true if the section exists in the INI data.
func (d iniData) hasSection(section string) bool {
	_, ok := d[section]
	return ok
}

// =============================================================================
// Type parsing helpers
// =============================================================================

// asBool parses a string as boolean. Truthy: "1","true","yes","on".
// Falsy: "0","false","no","off". Returns fallback on empty/unrecognised.
func asBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// asInt parses a string as int with optional min/max clamping.
// Pass nil for unbounded. Returns fallback on parse error.
func asInt(value string, fallback int, minVal, maxVal *int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	if minVal != nil && parsed < *minVal {
		parsed = *minVal
	}
	if maxVal != nil && parsed > *maxVal {
		parsed = *maxVal
	}
	return parsed
}

// asFloat parses a string as float64 with optional min/max clamping.
// Pass nil for unbounded. Returns fallback on parse error.
func asFloat(value string, fallback float64, minVal, maxVal *float64) float64 {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	if minVal != nil && parsed < *minVal {
		parsed = *minVal
	}
	if maxVal != nil && parsed > *maxVal {
		parsed = *maxVal
	}
	return parsed
}

// asFacing normalises a facing name. Returns "" when unrecognised.
func asFacing(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "front", "user":
		return "front"
	case "back", "rear", "world":
		return "back"
	default:
		return ""
	}
}

// Helper functions to create pointers for min/max bounds
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// =============================================================================
// Load + Apply
// =============================================================================

// ConfigPath returns the INI file path to use, respecting env vars.
func ConfigPath() string {
	if p := os.Getenv("PROJET_ROBOTIQUE_CONFIG"); p != "" {
		return p
	}
	return "./config.ini"
}

// Load reads the INI file at the given path (or the default/env path)
// and returns a fully populated Config. Missing sections or keys
// fall back to DefaultConfig() values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	// If file doesn't exist, return defaults (not an error)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnv(cfg)
		return cfg, nil
	}

	ini, err := parseINI(path)
	if err != nil {
		return cfg, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyINI(cfg, ini)
	applyEnv(cfg)

	return cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) {
	if logFile := os.Getenv("PROJET_ROBOTIQUE_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
}

// applyINI maps INI key-value pairs onto the Config struct.
func applyINI(cfg *Config, ini iniData) {
	// [logging]
	if ini.hasSection("logging") {
		if v, ok := ini.get("logging", "level"); ok {
			cfg.LogLevel = strings.ToUpper(strings.TrimSpace(v))
		}
		if v, ok := ini.get("logging", "file"); ok {
			cfg.LogFile = v
		}
		if v, ok := ini.get("logging", "max_bytes"); ok {
			cfg.LogMaxBytes = asInt(v, cfg.LogMaxBytes, intPtr(1024), nil)
		}
		if v, ok := ini.get("logging", "backup_count"); ok {
			cfg.LogBackupCount = asInt(v, cfg.LogBackupCount, intPtr(1), nil)
		}
		if v, ok := ini.get("logging", "stdout"); ok {
			cfg.LogToStdout = asBool(v, cfg.LogToStdout)
		}
	}

	// [camera]
	if ini.hasSection("camera") {
		if v, ok := ini.get("camera", "backend"); ok {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "v4l2" || v == "ffmpeg" || v == "synthetic" {
				cfg.CameraBackend = v
			}
		}
		if v, ok := ini.get("camera", "target_width"); ok {
			cfg.TargetWidth = asInt(v, cfg.TargetWidth, intPtr(16), intPtr(4096))
		}
		if v, ok := ini.get("camera", "target_height"); ok {
			cfg.TargetHeight = asInt(v, cfg.TargetHeight, intPtr(16), intPtr(4096))
		}
		if v, ok := ini.get("camera", "capture_fps"); ok {
			cfg.CaptureFPS = asInt(v, cfg.CaptureFPS, intPtr(1), intPtr(60))
		}
		if v, ok := ini.get("camera", "capture_format"); ok {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "mjpeg" || v == "yuyv" {
				cfg.CaptureFormat = v
			}
		}
		if v, ok := ini.get("camera", "kill_device_holders"); ok {
			cfg.KillDeviceHolders = asBool(v, cfg.KillDeviceHolders)
		}
		if v, ok := ini.get("camera", "synthetic_cameras"); ok {
			cfg.SyntheticFacings = nil
			for _, f := range strings.Split(v, ",") {
				if facing := asFacing(f); facing != "" {
					cfg.SyntheticFacings = append(cfg.SyntheticFacings, facing)
				}
			}
		}
		// facing_<device id> = front|back
		for key, v := range ini["camera"] {
			if !strings.HasPrefix(key, "facing_") {
				continue
			}
			if facing := asFacing(v); facing != "" {
				cfg.FacingOverrides[strings.TrimPrefix(key, "facing_")] = facing
			}
		}
	}

	// [ui]
	if ini.hasSection("ui") {
		if v, ok := ini.get("ui", "ui_fps"); ok {
			cfg.UIFPS = asInt(v, cfg.UIFPS, intPtr(1), intPtr(60))
		}
		if v, ok := ini.get("ui", "show_fps"); ok {
			cfg.ShowFPS = asBool(v, cfg.ShowFPS)
		}
		if v, ok := ini.get("ui", "night_mode"); ok {
			cfg.NightMode = asBool(v, cfg.NightMode)
		}
	}

	// [performance]
	if ini.hasSection("performance") {
		if v, ok := ini.get("performance", "dynamic_fps"); ok {
			cfg.DynamicFPSEnabled = asBool(v, cfg.DynamicFPSEnabled)
		}
		if v, ok := ini.get("performance", "perf_check_interval_ms"); ok {
			cfg.PerfCheckIntervalMS = asInt(v, cfg.PerfCheckIntervalMS, intPtr(250), nil)
		}
		if v, ok := ini.get("performance", "min_dynamic_fps"); ok {
			cfg.MinDynamicFPS = asInt(v, cfg.MinDynamicFPS, intPtr(1), nil)
		}
		if v, ok := ini.get("performance", "fps_step"); ok {
			cfg.FPSStep = asInt(v, cfg.FPSStep, intPtr(1), nil)
		}
		if v, ok := ini.get("performance", "cpu_load_threshold"); ok {
			cfg.CPULoadThreshold = asFloat(v, cfg.CPULoadThreshold, floatPtr(0.1), floatPtr(20.0))
		}
		if v, ok := ini.get("performance", "cpu_temp_threshold_c"); ok {
			cfg.CPUTempThresholdC = asFloat(v, cfg.CPUTempThresholdC, floatPtr(30.0), floatPtr(100.0))
		}
		if v, ok := ini.get("performance", "stress_hold_count"); ok {
			cfg.StressHoldCount = asInt(v, cfg.StressHoldCount, intPtr(1), nil)
		}
		if v, ok := ini.get("performance", "recover_hold_count"); ok {
			cfg.RecoverHoldCount = asInt(v, cfg.RecoverHoldCount, intPtr(1), nil)
		}
	}

	// [server]
	if ini.hasSection("server") {
		if v, ok := ini.get("server", "enabled"); ok {
			cfg.ServerEnabled = asBool(v, cfg.ServerEnabled)
		}
		if v, ok := ini.get("server", "listen"); ok && v != "" {
			cfg.ServerListen = v
		}
	}

	// [health]
	if ini.hasSection("health") {
		if v, ok := ini.get("health", "log_interval_sec"); ok {
			cfg.HealthLogIntervalSec = asFloat(v, cfg.HealthLogIntervalSec, floatPtr(0), nil)
		}
	}
}

// =============================================================================
// Validate
// =============================================================================

// Validate checks whether the Config values are reasonable and returns
// warnings. Returns ok=false if any setting is critically problematic.
func (c *Config) Validate() (ok bool, warnings []string) {
	ok = true

	// Gradient cost grows with the pixel count
	if c.TargetWidth*c.TargetHeight > 640*480 {
		warnings = append(warnings, fmt.Sprintf("Target preview %dx%d is large; gradient processing may fall behind",
			c.TargetWidth, c.TargetHeight))
	}

	if c.MinDynamicFPS > c.CaptureFPS {
		warnings = append(warnings, fmt.Sprintf("MinDynamicFPS (%d) > CaptureFPS (%d)", c.MinDynamicFPS, c.CaptureFPS))
	}

	if c.UIFPS > c.CaptureFPS*2 {
		warnings = append(warnings, fmt.Sprintf("UI FPS %d is more than twice the capture rate %d", c.UIFPS, c.CaptureFPS))
	}

	if c.CameraBackend == "synthetic" && len(c.SyntheticFacings) == 0 {
		warnings = append(warnings, "Synthetic back-end has no cameras configured")
	}

	if c.ServerEnabled && c.ServerListen == "" {
		ok = false
		warnings = append(warnings, "Preview server enabled without a listen address")
	}

	return ok, warnings
}
