//go:build !windows

package pattern

import (
	"errors"
	"os"
	"regexp"
	"syscall"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

func scanPIDs(re *regexp.Regexp) ([]int32, error) {
	procs, err := gopsproc.Processes()
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	var pids []int32
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			continue
		}
		if re.MatchString(cmdline) {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

// KillPIDs terminates the given processes: SIGTERM first, then SIGKILL for
// whatever is still alive after the grace period.
func KillPIDs(pids []int32, grace time.Duration) error {
	if len(pids) == 0 {
		return nil
	}
	for _, pid := range pids {
		_ = syscall.Kill(int(pid), syscall.SIGTERM)
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !anyAlive(pids) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	var firstErr error
	for _, pid := range pids {
		if !Alive(int(pid)) {
			continue
		}
		if err := syscall.Kill(int(pid), syscall.SIGKILL); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func anyAlive(pids []int32) bool {
	for _, pid := range pids {
		if Alive(int(pid)) {
			return true
		}
	}
	return false
}

// Alive returns true if a process with the given pid exists (or EPERM).
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
