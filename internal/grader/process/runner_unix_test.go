//go:build unix

package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// processGone reports whether pid no longer runs. A zombie waiting for init counts as gone.
func processGone(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return true
	}
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	stat := string(data)
	if i := strings.LastIndexByte(stat, ')'); i >= 0 && i+2 < len(stat) {
		return stat[i+2] == 'Z'
	}
	return false
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		t.Fatalf("bad pid %q: %v", data, err)
	}
	return pid
}

func assertGone(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !processGone(pid) {
		if time.Now().After(deadline) {
			_ = unix.Kill(pid, unix.SIGKILL)
			t.Fatalf("background process %d still running after Run returned", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunKillsBackgroundProcessGroup(t *testing.T) {
	tests := []struct {
		name     string
		tail     string
		timeout  time.Duration
		timedOut bool
	}{
		{name: "timeout", tail: "wait", timeout: 300 * time.Millisecond, timedOut: true},
		{name: "normal exit", tail: "exit 0", timeout: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pidFile := filepath.Join(t.TempDir(), "pid")
			r := NewExecRunner(Config{WaitDelay: 500 * time.Millisecond})

			res, err := r.Run(context.Background(), Request{
				Path:    "/bin/sh",
				Args:    []string{"-c", "sleep 30 >/dev/null 2>&1 & echo $! > '" + pidFile + "'; " + tt.tail},
				Timeout: tt.timeout,
			})
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if res.TimedOut != tt.timedOut {
				t.Fatalf("expected TimedOut=%v, got %v", tt.timedOut, res.TimedOut)
			}
			assertGone(t, readPID(t, pidFile))
		})
	}
}
