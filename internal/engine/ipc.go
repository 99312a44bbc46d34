package engine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/simplevisor/simplevisor/internal/pidfile"
)

// Instruction verbs a live daemon accepts through its control file.
const (
	VerbWakeUp         = "wake_up"
	VerbRestartChild   = "restart_child"
	VerbStopChildren   = "stop_children"
	VerbStopSupervisor = "stop_supervisor"
	VerbStop           = "stop"
)

// Instruction is one out-of-band request to a running daemon: a verb plus an
// optional target path, one per line in the control file.
type Instruction struct {
	Verb string
	Path string
}

func (i Instruction) String() string {
	if i.Path == "" {
		return i.Verb
	}
	return i.Verb + " " + i.Path
}

// SendInstruction appends one instruction to the control file derived from
// pidPath and pokes the daemon. It fails with ErrNoRunningInstance when no
// live daemon owns the pidfile.
func SendInstruction(pidPath string, ins Instruction) error {
	pid := pidfile.Running(pidPath)
	if pid == 0 {
		return fmt.Errorf("%w (pidfile %s)", ErrNoRunningInstance, pidPath)
	}
	ctl := pidfile.ControlPath(pidPath)
	f, err := os.OpenFile(ctl, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open control file %s: %w", ctl, err)
	}
	if _, err := f.WriteString(ins.String() + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write control file %s: %w", ctl, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close control file %s: %w", ctl, err)
	}
	return pidfile.Notify(pid)
}

// drainInstructions consumes and removes the control file. Unparseable lines
// are dropped; a missing file is an empty batch.
func drainInstructions(pidPath string) []Instruction {
	ctl := pidfile.ControlPath(pidPath)
	data, err := os.ReadFile(ctl)
	if err != nil {
		return nil
	}
	_ = os.Remove(ctl)
	var out []Instruction
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		verb, path, _ := strings.Cut(line, " ")
		out = append(out, Instruction{Verb: verb, Path: strings.TrimSpace(path)})
	}
	return out
}

// StopDaemon asks the running daemon to stop itself and all children, then
// waits up to wait for the daemon process to exit. On timeout the daemon
// gets a SIGTERM and one more grace period before this fails.
func StopDaemon(pidPath string, wait time.Duration) error {
	pid := pidfile.Running(pidPath)
	if pid == 0 {
		return fmt.Errorf("%w (pidfile %s)", ErrNoRunningInstance, pidPath)
	}
	if err := SendInstruction(pidPath, Instruction{Verb: VerbStop}); err != nil {
		return err
	}
	if waitGone(pid, wait) {
		return nil
	}
	if err := pidfile.Terminate(pid); err != nil {
		return fmt.Errorf("terminate daemon pid %d: %w", pid, err)
	}
	if waitGone(pid, wait) {
		return nil
	}
	return fmt.Errorf("daemon pid %d did not exit", pid)
}

func waitGone(pid int, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !pidfile.Alive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !pidfile.Alive(pid)
}
