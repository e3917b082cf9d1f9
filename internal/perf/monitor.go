// Package perf samples host load and lowers the capture rate while the
// machine is struggling.
package perf

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sample is one reading of the host metrics.
type Sample struct {
	LoadAverage float64
	Temperature float64 // Celsius, 0 when no sensor is readable
	MemoryUsage float64 // Percentage of memory used
	TakenAt     time.Time
}

// Sampler produces host metric readings.
type Sampler interface {
	Sample() (Sample, error)
}

// Monitor tracks system performance metrics read from procfs and sysfs.
type Monitor struct {
	procRoot string
	sysRoot  string

	mu   sync.RWMutex
	last Sample
}

// NewMonitor creates a monitor over the live /proc and /sys trees.
func NewMonitor() *Monitor {
	return NewMonitorAt("/proc", "/sys")
}

// NewMonitorAt reads from alternative roots, used by tests.
func NewMonitorAt(procRoot, sysRoot string) *Monitor {
	return &Monitor{procRoot: procRoot, sysRoot: sysRoot}
}

// Sample reads fresh statistics. Load average is required; temperature and
// memory are best effort.
func (m *Monitor) Sample() (Sample, error) {
	load, err := m.readLoadAverage()
	if err != nil {
		return Sample{}, err
	}

	s := Sample{LoadAverage: load, TakenAt: time.Now()}
	if temp, err := m.readTemperature(); err == nil {
		s.Temperature = temp
	}
	if mem, err := m.readMemoryUsage(); err == nil {
		s.MemoryUsage = mem
	}

	m.mu.Lock()
	m.last = s
	m.mu.Unlock()
	return s, nil
}

// Last returns the most recent successful sample.
func (m *Monitor) Last() Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// readLoadAverage reads the 1-minute system load average
func (m *Monitor) readLoadAverage() (float64, error) {
	data, err := os.ReadFile(filepath.Join(m.procRoot, "loadavg"))
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(string(data))
	if len(fields) < 1 {
		return 0, ErrInvalidLoadAverage
	}
	return strconv.ParseFloat(fields[0], 64)
}

// readTemperature averages the readable thermal zones
func (m *Monitor) readTemperature() (float64, error) {
	zones, _ := filepath.Glob(filepath.Join(m.sysRoot, "class", "thermal", "thermal_zone*", "temp"))

	var totalTemp float64
	var count int
	for _, path := range zones {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if temp, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); err == nil {
			// Temperature is in millidegrees Celsius
			totalTemp += temp / 1000.0
			count++
		}
	}

	if count == 0 {
		return 0, ErrTemperatureNotFound
	}
	return totalTemp / float64(count), nil
}

// readMemoryUsage reads memory stats from meminfo
func (m *Monitor) readMemoryUsage() (float64, error) {
	data, err := os.ReadFile(filepath.Join(m.procRoot, "meminfo"))
	if err != nil {
		return 0, err
	}

	var memTotal, memAvailable int64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			memTotal, _ = strconv.ParseInt(fields[1], 10, 64)
		case "MemAvailable:":
			memAvailable, _ = strconv.ParseInt(fields[1], 10, 64)
		}
	}

	if memTotal <= 0 {
		return 0, ErrInvalidMeminfo
	}
	return 100.0 * float64(memTotal-memAvailable) / float64(memTotal), nil
}

// Errors
var (
	ErrInvalidLoadAverage  = errors.New("invalid load average format")
	ErrTemperatureNotFound = errors.New("temperature sensors not found")
	ErrInvalidMeminfo      = errors.New("invalid meminfo format")
)
