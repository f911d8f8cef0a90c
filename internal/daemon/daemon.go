// Package daemon manages the background tick process through a PID
// file: start launches a detached child, stop sends SIGTERM and polls
// for exit, status probes the recorded pid with signal 0.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	pidFileName = "flock-daemon.pid"
	logFileName = "flock-daemon.log"

	stopPollInterval = 100 * time.Millisecond
	stopPollAttempts = 20
)

// Controller drives the detached tick-loop lifecycle. All state lives
// in two files under the data dir, so any process can manage any other.
type Controller struct {
	dataDir string
}

func New(dataDir string) *Controller {
	return &Controller{dataDir: dataDir}
}

func (c *Controller) PIDPath() string { return filepath.Join(c.dataDir, pidFileName) }
func (c *Controller) LogPath() string { return filepath.Join(c.dataDir, logFileName) }

// ReadPID returns the recorded daemon pid, or 0 when no usable pidfile
// exists.
func (c *Controller) ReadPID() int {
	data, err := os.ReadFile(c.PIDPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// WritePID records pid in the pidfile. The run loop calls this with
// its own pid once it is serving ticks.
func (c *Controller) WritePID(pid int) error {
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.PIDPath(), []byte(strconv.Itoa(pid)), 0o644)
}

func (c *Controller) RemovePID() {
	_ = os.Remove(c.PIDPath())
}

// Running reports whether the recorded pid names a live process. It
// returns the pid either way so callers can report stale files.
func (c *Controller) Running() (int, bool) {
	pid := c.ReadPID()
	if pid == 0 {
		return 0, false
	}
	return pid, processAlive(pid)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Start launches a detached child running `<self> daemon run` with
// stdout and stderr appended to the daemon log, then records its pid.
func (c *Controller) Start(extraArgs ...string) (int, error) {
	if pid, alive := c.Running(); alive {
		return pid, fmt.Errorf("daemon already running (pid %d)", pid)
	}

	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(c.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	args := append([]string{"daemon", "run"}, extraArgs...)
	cmd := exec.Command(self, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}

	pid := cmd.Process.Pid
	// The child rewrites the pidfile with its own pid once the loop is
	// up; recording it now keeps status accurate in the interim.
	if err := c.WritePID(pid); err != nil {
		return pid, err
	}
	_ = cmd.Process.Release()
	return pid, nil
}

// Stop sends SIGTERM to the recorded pid and waits up to two seconds
// for it to exit. Stale pidfiles are cleaned up along the way.
func (c *Controller) Stop() (int, error) {
	pid, alive := c.Running()
	if !alive {
		c.RemovePID()
		if pid == 0 {
			return 0, fmt.Errorf("daemon not running")
		}
		return pid, fmt.Errorf("daemon not running (removed stale pidfile for %d)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return pid, fmt.Errorf("signal daemon: %w", err)
	}
	for i := 0; i < stopPollAttempts; i++ {
		if !processAlive(pid) {
			break
		}
		time.Sleep(stopPollInterval)
	}
	c.RemovePID()
	if processAlive(pid) {
		return pid, fmt.Errorf("daemon %d did not exit after SIGTERM", pid)
	}
	return pid, nil
}
