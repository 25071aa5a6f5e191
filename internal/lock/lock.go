// Package lock guards against starting two EnsoAI servers for the same
// user. The desktop shell expects exactly one backend; with port fallback
// enabled a second instance would silently bind the next port and split
// state across processes.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFileName is the server PID file name inside the enso directory.
const PIDFileName = "server.pid"

// Guard is a PID-file guard for the single server instance.
type Guard struct {
	dir string
}

// NewGuard creates a guard keeping its PID file in dir.
func NewGuard(dir string) *Guard {
	return &Guard{dir: dir}
}

func (g *Guard) pidFilePath() string {
	return filepath.Join(g.dir, PIDFileName)
}

// Check reports whether another server instance is already running.
// Invalid or stale PID files left by crashed processes are removed.
// Returns nil when it is safe to start.
func (g *Guard) Check() error {
	pidFile := g.pidFilePath()

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(pidFile)
		return nil
	}

	if processExists(pid) {
		return &AlreadyRunningError{PID: pid}
	}

	os.Remove(pidFile)
	return nil
}

// Acquire writes this process's PID to the guard file. Call Check first.
func (g *Guard) Acquire() error {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("create enso dir: %w", err)
	}

	pid := os.Getpid()
	if err := os.WriteFile(g.pidFilePath(), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file. Safe to call when the file is absent.
func (g *Guard) Release() {
	os.Remove(g.pidFilePath())
}

// AlreadyRunningError reports the PID of a live server instance.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("server already running (pid %d)", e.PID)
}

// processExists checks whether a process with the given PID is alive.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix FindProcess always succeeds; signal 0 does the real probe.
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
