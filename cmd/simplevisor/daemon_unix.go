//go:build !windows

package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// daemonize re-execs the current invocation detached from the terminal, with
// the --daemon flag stripped so the child runs the loop in the foreground.
// The parent returns once the child is spawned.
func daemonize() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}
	var args []string
	for _, arg := range os.Args[1:] {
		if arg == "--daemon" || strings.HasPrefix(arg, "--daemon=") {
			continue
		}
		args = append(args, arg)
	}

	// #nosec G204 -- re-exec of our own binary with our own args
	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil

	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer func() { _ = devNull.Close() }()
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	fmt.Printf("daemon started (pid %d)\n", cmd.Process.Pid)
	return cmd.Process.Release()
}
