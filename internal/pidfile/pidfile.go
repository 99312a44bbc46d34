// Package pidfile implements the daemon's single-instance lock: a file
// holding the daemon PID, used both to detect a running instance and to
// derive the control-file path for instruction delivery.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrAlreadyRunning reports that a live daemon already owns the pidfile.
var ErrAlreadyRunning = errors.New("daemon already running")

// ControlPath derives the instruction-file path from the pidfile path.
func ControlPath(pidPath string) string { return pidPath + ".ctl" }

// Read returns the PID stored at path.
func Read(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidLine, _, _ := strings.Cut(string(b), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, fmt.Errorf("malformed pidfile %s: %w", path, err)
	}
	return pid, nil
}

// Running returns the PID of the live daemon owning the pidfile, or 0 if the
// pidfile is absent, malformed, or names a dead process.
func Running(path string) int {
	pid, err := Read(path)
	if err != nil || pid <= 0 {
		return 0
	}
	if !Alive(pid) {
		return 0
	}
	return pid
}

// Acquire claims the pidfile for the current process. A pidfile naming a live
// process yields ErrAlreadyRunning; a stale one is taken over.
func Acquire(path string) error {
	if pid := Running(path); pid != 0 && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d, pidfile %s)", ErrAlreadyRunning, pid, path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)
}

// Remove deletes the pidfile and its control file.
func Remove(path string) {
	_ = os.Remove(path)
	_ = os.Remove(ControlPath(path))
}
