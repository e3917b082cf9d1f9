package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Facing is the orientation of a camera relative to the user.
type Facing int

const (
	// FacingBack is a world-facing camera.
	FacingBack Facing = iota
	// FacingFront is a user-facing camera.
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// ParseFacing maps "front"/"back" to a Facing.
func ParseFacing(s string) (Facing, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "front":
		return FacingFront, true
	case "back":
		return FacingBack, true
	}
	return FacingBack, false
}

// Camera represents a camera device
type Camera struct {
	Index      int
	DeviceID   string
	DevicePath string
	Name       string
	Facing     Facing
	Available  bool
}

// SysfsVideoRoot is where the kernel lists V4L2 nodes.
const SysfsVideoRoot = "/sys/class/video4linux"

// frontFacingHints are substrings of V4L2 card names that usually denote
// a camera built into a laptop lid or display, pointing at the user.
var frontFacingHints = []string{"integrated", "front", "user", "facetime", "built-in"}

// GuessFacing infers a facing from the device name. External cameras are
// assumed to look at the world.
func GuessFacing(name string) Facing {
	lower := strings.ToLower(name)
	for _, hint := range frontFacingHints {
		if strings.Contains(lower, hint) {
			return FacingFront
		}
	}
	return FacingBack
}

// DiscoverCameras lists the primary capture node of every V4L2 device under
// sysfsRoot, ordered by device number. Metadata nodes (index != 0) are skipped.
// overrides maps a device id ("video0") to "front" or "back".
func DiscoverCameras(sysfsRoot string, overrides map[string]string) ([]Camera, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan %s: %w", sysfsRoot, err)
	}

	type numbered struct {
		num int
		id  string
	}
	var nodes []numbered
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}
		nodes = append(nodes, numbered{num, name})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].num < nodes[j].num })

	var cameras []Camera
	for _, n := range nodes {
		dir := filepath.Join(sysfsRoot, n.id)

		// Multi-node UVC devices expose metadata nodes with index 1+
		if idx, err := readSysfs(dir, "index"); err == nil && idx != "0" {
			continue
		}

		name, err := readSysfs(dir, "name")
		if err != nil || name == "" {
			name = fmt.Sprintf("Camera %s", n.id)
		}

		facing := GuessFacing(name)
		if override, ok := overrides[n.id]; ok {
			if f, ok := ParseFacing(override); ok {
				facing = f
			}
		}

		cameras = append(cameras, Camera{
			Index:      len(cameras),
			DeviceID:   n.id,
			DevicePath: "/dev/" + n.id,
			Name:       name,
			Facing:     facing,
			Available:  true,
		})
	}

	return cameras, nil
}

func readSysfs(dir, attr string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
