package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestControlPath(t *testing.T) {
	if got := ControlPath("/var/run/svisor.pid"); got != "/var/run/svisor.pid.ctl" {
		t.Fatalf("control path = %q", got)
	}
}

func TestAcquireAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svisor.pid")
	if err := Acquire(path); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	pid, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
	if runtime.GOOS != "windows" && Running(path) != os.Getpid() {
		t.Fatalf("own pid must count as running")
	}
	Remove(path)
	if _, err := Read(path); err == nil {
		t.Fatalf("pidfile must be gone after Remove")
	}
}

func TestAcquireTakesOverStalePidfile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("liveness probe is unix-only")
	}
	path := filepath.Join(t.TempDir(), "svisor.pid")
	// far beyond any real pid space, so the liveness probe sees a dead owner
	if err := os.WriteFile(path, []byte("99999999\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := Running(path); got != 0 {
		t.Fatalf("stale pidfile reported running pid %d", got)
	}
	if err := Acquire(path); err != nil {
		t.Fatalf("stale pidfile must be taken over: %v", err)
	}
	pid, err := Read(path)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("pid = %d, %v", pid, err)
	}
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("liveness probe is unix-only")
	}
	path := filepath.Join(t.TempDir(), "svisor.pid")
	// pid 1 is always alive
	if err := os.WriteFile(path, []byte("1\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := Acquire(path)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestReadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svisor.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := Read(path); err == nil {
		t.Fatalf("malformed pidfile must fail to parse")
	}
	if Running(path) != 0 {
		t.Fatalf("malformed pidfile must never report a running daemon")
	}
}

func TestAliveSelf(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("liveness probe is unix-only")
	}
	if !Alive(os.Getpid()) {
		t.Fatalf("the test process itself must be alive")
	}
	if Alive(99999999) {
		t.Fatalf("pid far beyond the pid space must not be alive")
	}
}
