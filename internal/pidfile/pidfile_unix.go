//go:build !windows

package pidfile

import (
	"errors"
	"syscall"
)

// Alive reports whether a process with the given PID exists. Signal 0 probes
// existence without delivering anything; EPERM still means alive.
func Alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// Notify pokes the daemon so it drains its control file ahead of the next
// scheduled cycle.
func Notify(pid int) error {
	return syscall.Kill(pid, syscall.SIGUSR1)
}

// Terminate asks the daemon to shut down, for when an instruction went
// unanswered.
func Terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
