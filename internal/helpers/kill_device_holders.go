// Package helpers holds host utilities used around camera capture.
package helpers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultGrace is the wait between SIGTERM and SIGKILL.
const DefaultGrace = 400 * time.Millisecond

// DeviceHolders finds the processes that keep a /dev/video* node open and
// stops them so a new capture session can open the device. A stale ffmpeg
// from an earlier run is the usual culprit.
type DeviceHolders struct {
	Grace    time.Duration
	ProcRoot string

	run    func(ctx context.Context, name string, args ...string) string
	signal func(pid int, sig syscall.Signal) error
	sleep  func(time.Duration)
	self   int
}

// NewDeviceHolders returns a DeviceHolders acting on the real host.
func NewDeviceHolders() *DeviceHolders {
	return &DeviceHolders{
		Grace:    DefaultGrace,
		ProcRoot: "/proc",
		run:      runCmd,
		signal:   syscall.Kill,
		sleep:    time.Sleep,
		self:     os.Getpid(),
	}
}

// Find lists the PIDs holding devicePath, excluding this process. It asks
// lsof, then fuser, then scans the fd tables under ProcRoot.
func (h *DeviceHolders) Find(ctx context.Context, devicePath string) []int {
	pids := parsePIDLines(h.run(ctx, "lsof", "-t", devicePath))
	if len(pids) == 0 {
		pids = parseFuserPIDs(h.run(ctx, "fuser", devicePath))
	}
	if len(pids) == 0 {
		pids = h.scanProc(devicePath)
	}
	return slices.DeleteFunc(pids, func(pid int) bool { return pid == h.self })
}

// scanProc walks <ProcRoot>/<pid>/fd looking for links to devicePath.
func (h *DeviceHolders) scanProc(devicePath string) []int {
	links, _ := filepath.Glob(filepath.Join(h.ProcRoot, "[0-9]*", "fd", "*"))
	var pids []int
	for _, link := range links {
		target, err := os.Readlink(link)
		if err != nil || target != devicePath {
			continue
		}
		pid, err := strconv.Atoi(filepath.Base(filepath.Dir(filepath.Dir(link))))
		if err == nil && !slices.Contains(pids, pid) {
			pids = append(pids, pid)
		}
	}
	slices.Sort(pids)
	return pids
}

// Release terminates the holders of devicePath and returns the PIDs it
// signalled. Holders still alive after Grace get SIGKILL. PIDs this process
// may not signal are reported in the error and left alone.
func (h *DeviceHolders) Release(ctx context.Context, devicePath string) ([]int, error) {
	pids := h.Find(ctx, devicePath)
	if len(pids) == 0 {
		return nil, nil
	}
	slog.Info("releasing camera device", "component", "helpers", "device", devicePath, "pids", pids)

	var errs []error
	var signalled []int
	for _, pid := range pids {
		if err := h.signal(pid, syscall.SIGTERM); err != nil {
			if !errors.Is(err, syscall.ESRCH) {
				errs = append(errs, fmt.Errorf("terminate %d: %w", pid, err))
			}
			continue
		}
		signalled = append(signalled, pid)
	}
	if len(signalled) == 0 {
		return nil, errors.Join(errs...)
	}

	h.sleep(h.Grace)

	for _, pid := range signalled {
		if h.signal(pid, 0) != nil {
			continue
		}
		slog.Warn("device holder ignored SIGTERM", "component", "helpers", "pid", pid)
		if err := h.signal(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
		}
	}
	return signalled, errors.Join(errs...)
}

// KillDeviceHolders releases devicePath on the real host. It is a no-op when
// enabled is false and reports whether any process was signalled.
func KillDeviceHolders(ctx context.Context, devicePath string, enabled bool) bool {
	if !enabled {
		return false
	}
	pids, err := NewDeviceHolders().Release(ctx, devicePath)
	if err != nil {
		slog.Warn("could not release camera device", "component", "helpers", "device", devicePath, "error", err)
	}
	return len(pids) > 0
}

// parsePIDLines reads one PID per line, as printed by lsof -t.
func parsePIDLines(out string) []int {
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		if pid, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && pid > 0 && !slices.Contains(pids, pid) {
			pids = append(pids, pid)
		}
	}
	slices.Sort(pids)
	return pids
}

// parseFuserPIDs reads fuser output. PIDs may carry an access letter suffix
// such as "4242m"; the leading "<path>:" field is skipped.
func parseFuserPIDs(out string) []int {
	var pids []int
	for _, field := range strings.Fields(out) {
		if strings.HasSuffix(field, ":") {
			continue
		}
		digits := strings.TrimRight(field, "cefFrm")
		if pid, err := strconv.Atoi(digits); err == nil && pid > 0 && !slices.Contains(pids, pid) {
			pids = append(pids, pid)
		}
	}
	slices.Sort(pids)
	return pids
}

// runCmd runs a lookup tool with a 2 second limit. Failures, including a
// missing binary, yield an empty string.
func runCmd(ctx context.Context, name string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
