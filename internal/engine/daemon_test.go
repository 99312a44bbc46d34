package engine

import (
	"errors"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/simplevisor/simplevisor/internal/pidfile"
)

func TestDaemonWakeUpTriggersImmediateCycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("signal-based IPC is unix-only")
	}
	dir := t.TempDir()
	cfg := testConfig(dir, fileService(dir, "web"))
	// long enough that only a wake_up explains a second cycle
	cfg.Interval = 30 * time.Second
	eng := newTestEngine(t, cfg)

	done := make(chan error, 1)
	go func() { done <- eng.Run() }()

	webUp := func() bool { return fileExists(upFile(dir, "web")) }
	if !waitUntil(t, 5*time.Second, 50*time.Millisecond, webUp) {
		t.Fatalf("first cycle did not start the service")
	}
	if pidfile.Running(cfg.PIDFile) == 0 {
		t.Fatalf("daemon did not claim the pidfile")
	}

	// kill the service while the daemon sleeps, then wake it
	if err := os.Remove(upFile(dir, "web")); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := SendInstruction(cfg.PIDFile, Instruction{Verb: VerbWakeUp}); err != nil {
		t.Fatalf("wake_up: %v", err)
	}
	if !waitUntil(t, 5*time.Second, 50*time.Millisecond, webUp) {
		t.Fatalf("wake_up did not interrupt the sleep with an immediate cycle")
	}

	// stop_supervisor ends the loop but leaves children running
	if err := SendInstruction(cfg.PIDFile, Instruction{Verb: VerbStopSupervisor}); err != nil {
		t.Fatalf("stop_supervisor: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("daemon did not exit on stop_supervisor")
	}
	if !webUp() {
		t.Fatalf("stop_supervisor must leave children running")
	}
	if pidfile.Running(cfg.PIDFile) != 0 {
		t.Fatalf("pidfile not cleared on clean exit")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("liveness probe is unix-only")
	}
	dir := t.TempDir()
	cfg := testConfig(dir, fileService(dir, "web"))
	// pid 1 is always alive and never us
	if err := os.WriteFile(cfg.PIDFile, []byte("1\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	eng := newTestEngine(t, cfg)
	if err := eng.Run(); !errors.Is(err, pidfile.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}
