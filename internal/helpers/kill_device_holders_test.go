package helpers

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentSignal struct {
	pid int
	sig syscall.Signal
}

// fakeHost records signals and keeps the PIDs in stubborn alive after SIGTERM.
type fakeHost struct {
	lsof     string
	fuser    string
	stubborn map[int]bool
	denied   map[int]bool
	sent     []sentSignal
	slept    time.Duration
}

func (f *fakeHost) holders(self int) *DeviceHolders {
	return &DeviceHolders{
		Grace:    50 * time.Millisecond,
		ProcRoot: filepath.Join(os.TempDir(), "no-such-proc"),
		run: func(_ context.Context, name string, _ ...string) string {
			if name == "lsof" {
				return f.lsof
			}
			return f.fuser
		},
		signal: func(pid int, sig syscall.Signal) error {
			if f.denied[pid] {
				return syscall.EPERM
			}
			if sig == 0 {
				if f.stubborn[pid] {
					return nil
				}
				return syscall.ESRCH
			}
			f.sent = append(f.sent, sentSignal{pid, sig})
			return nil
		},
		sleep: func(d time.Duration) { f.slept += d },
		self:  self,
	}
}

func TestParsePIDLines(t *testing.T) {
	assert.Equal(t, []int{123, 456}, parsePIDLines("456\n 123 \nabc\n0\n123\n"))
	assert.Empty(t, parsePIDLines(""))
}

func TestParseFuserPIDs(t *testing.T) {
	assert.Equal(t, []int{977, 4242}, parseFuserPIDs("/dev/video0:  4242m  977"))
	assert.Equal(t, []int{12}, parseFuserPIDs(" 12"))
	assert.Empty(t, parseFuserPIDs(""))
}

func TestReleaseEscalatesStubbornHolders(t *testing.T) {
	host := &fakeHost{lsof: "10\n20\n99", stubborn: map[int]bool{20: true}}
	h := host.holders(99)

	pids, err := h.Release(context.Background(), "/dev/video0")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, pids, "own pid is never signalled")
	assert.Equal(t, []sentSignal{
		{10, syscall.SIGTERM},
		{20, syscall.SIGTERM},
		{20, syscall.SIGKILL},
	}, host.sent)
	assert.Equal(t, 50*time.Millisecond, host.slept)
}

func TestReleaseFallsBackToFuser(t *testing.T) {
	host := &fakeHost{fuser: " 31m"}
	pids, err := host.holders(1).Release(context.Background(), "/dev/video0")
	require.NoError(t, err)
	assert.Equal(t, []int{31}, pids)
}

func TestReleaseReportsDeniedHolders(t *testing.T) {
	host := &fakeHost{lsof: "7", denied: map[int]bool{7: true}}
	pids, err := host.holders(1).Release(context.Background(), "/dev/video0")
	assert.ErrorIs(t, err, syscall.EPERM)
	assert.Empty(t, pids)
	assert.Zero(t, host.slept, "nothing to wait for")
}

func TestReleaseWithoutHolders(t *testing.T) {
	host := &fakeHost{}
	pids, err := host.holders(1).Release(context.Background(), "/dev/video0")
	require.NoError(t, err)
	assert.Nil(t, pids)
	assert.Empty(t, host.sent)
}

func TestFindScansProcFD(t *testing.T) {
	root := t.TempDir()
	link := func(pid int, fd, target string) {
		dir := filepath.Join(root, strconv.Itoa(pid), "fd")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.Symlink(target, filepath.Join(dir, fd)))
	}
	link(300, "3", "/dev/video0")
	link(300, "4", "/dev/video0")
	link(200, "5", "/dev/video0")
	link(400, "3", "/dev/video2")
	link(1, "9", "/dev/video0")

	host := &fakeHost{}
	h := host.holders(1)
	h.ProcRoot = root
	assert.Equal(t, []int{200, 300}, h.Find(context.Background(), "/dev/video0"))
}

func TestKillDeviceHoldersDisabled(t *testing.T) {
	assert.False(t, KillDeviceHolders(context.Background(), "/dev/video0", false))
}
