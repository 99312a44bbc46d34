package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/simplevisor/simplevisor/internal/config"
	"github.com/simplevisor/simplevisor/internal/entry"
	"github.com/simplevisor/simplevisor/internal/snapshot"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout, tick time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(tick)
	}
	return cond()
}

// fileService declares a service whose running state is a marker file, so
// start/stop/status are real shell commands the engine drives end to end.
func fileService(dir, name string) config.EntryConfig {
	up := filepath.Join(dir, name+".up")
	return config.EntryConfig{
		Name:   name,
		Start:  "touch " + up,
		Stop:   "rm -f " + up,
		Status: fmt.Sprintf("test -f %s || exit 3", up),
	}
}

func upFile(dir, name string) string { return filepath.Join(dir, name+".up") }

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func testConfig(dir string, children ...config.EntryConfig) *config.FileConfig {
	return &config.FileConfig{
		PIDFile:  filepath.Join(dir, "svisor.pid"),
		Interval: 10 * time.Second,
		Snapshot: snapshot.Config{Type: "file", Path: filepath.Join(dir, "snapshot.json")},
		Root:     &config.EntryConfig{Name: "system", Entries: children},
	}
}

func newTestEngine(t *testing.T, cfg *config.FileConfig) *Engine {
	t.Helper()
	eng, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestCycleStartsExpectedServices(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, fileService(dir, "web"), fileService(dir, "db"))
	eng := newTestEngine(t, cfg)

	eng.Cycle()

	for _, name := range []string{"web", "db"} {
		if !fileExists(upFile(dir, name)) {
			t.Fatalf("cycle did not start %s", name)
		}
	}
	if !fileExists(cfg.Snapshot.Path) {
		t.Fatalf("cycle did not persist a snapshot")
	}
}

func TestCycleRepairsKilledService(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, fileService(dir, "web"))
	eng := newTestEngine(t, cfg)

	eng.Cycle()
	if err := os.Remove(upFile(dir, "web")); err != nil {
		t.Fatalf("kill: %v", err)
	}
	eng.Cycle()
	if !fileExists(upFile(dir, "web")) {
		t.Fatalf("second cycle did not repair the killed service")
	}
}

func TestResolveNotFound(t *testing.T) {
	dir := t.TempDir()
	eng := newTestEngine(t, testConfig(dir, fileService(dir, "web")))

	if _, err := eng.Resolve("system/nope"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
	if err := eng.StartEntry("elsewhere"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestDirectStartStopEntry(t *testing.T) {
	dir := t.TempDir()
	eng := newTestEngine(t, testConfig(dir, fileService(dir, "web")))

	if err := eng.StartEntry("system/web"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !fileExists(upFile(dir, "web")) {
		t.Fatalf("direct start did not run the start command")
	}
	if err := eng.StopEntry("system/web"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if fileExists(upFile(dir, "web")) {
		t.Fatalf("direct stop did not run the stop command")
	}
}

func TestCheckReadOnly(t *testing.T) {
	dir := t.TempDir()
	eng := newTestEngine(t, testConfig(dir, fileService(dir, "web")))

	ok, detail, err := eng.Check("")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("stopped tree must not pass check: %v", detail)
	}
	if fileExists(upFile(dir, "web")) {
		t.Fatalf("check must never start anything")
	}
}

func TestStopChildrenPinsTreeStopped(t *testing.T) {
	dir := t.TempDir()
	eng := newTestEngine(t, testConfig(dir, fileService(dir, "web")))

	eng.Cycle()
	if err := eng.StopChildren(); err != nil {
		t.Fatalf("stop children: %v", err)
	}
	if fileExists(upFile(dir, "web")) {
		t.Fatalf("stop_children did not stop the service")
	}
	// further cycles supervise an all-stopped tree without restarting anything
	eng.Cycle()
	if fileExists(upFile(dir, "web")) {
		t.Fatalf("supervision restarted a pinned-stopped service")
	}
	if st, _ := eng.Root().Probe(); st != entry.Stopped {
		t.Fatalf("root = %s, want stopped", st)
	}
}

func TestSnapshotRestoredAcrossEngines(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, fileService(dir, "web"))
	eng := newTestEngine(t, cfg)
	eng.Cycle()

	eng2 := newTestEngine(t, cfg)
	ent, err := eng2.Resolve("system/web")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ent.Observed() != entry.Running {
		t.Fatalf("restored observed = %s, want running", ent.Observed())
	}
}

func TestDrainInstructions(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "svisor.pid")
	ctl := pidPath + ".ctl"
	content := "wake_up\nrestart_child system/web\n\nstop\n"
	if err := os.WriteFile(ctl, []byte(content), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ins := drainInstructions(pidPath)
	if len(ins) != 3 {
		t.Fatalf("instructions = %v", ins)
	}
	if ins[1].Verb != VerbRestartChild || ins[1].Path != "system/web" {
		t.Fatalf("instruction 1 = %+v", ins[1])
	}
	if fileExists(ctl) {
		t.Fatalf("drain must remove the control file")
	}
	if got := drainInstructions(pidPath); got != nil {
		t.Fatalf("second drain must be empty, got %v", got)
	}
}

func TestApplyInstructions(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, fileService(dir, "web"))
	eng := newTestEngine(t, cfg)
	ctl := cfg.PIDFile + ".ctl"

	seed := func(lines string) {
		if err := os.WriteFile(ctl, []byte(lines), 0o600); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	seed("restart_child system/web\n")
	if act := eng.applyInstructions(); act != actContinue {
		t.Fatalf("restart_child action = %v", act)
	}
	if !fileExists(upFile(dir, "web")) {
		t.Fatalf("restart_child did not bring the child up")
	}

	seed("stop_supervisor\n")
	if act := eng.applyInstructions(); act != actExitKeepChildren {
		t.Fatalf("stop_supervisor action = %v", act)
	}
	if !fileExists(upFile(dir, "web")) {
		t.Fatalf("stop_supervisor must leave children running")
	}

	seed("stop\n")
	if act := eng.applyInstructions(); act != actExitStopChildren {
		t.Fatalf("stop action = %v", act)
	}

	seed("bogus_verb\nstop_children\n")
	if act := eng.applyInstructions(); act != actContinue {
		t.Fatalf("unknown verbs must be ignored, got %v", act)
	}
	if fileExists(upFile(dir, "web")) {
		t.Fatalf("stop_children did not stop the child")
	}
}

func TestSendInstructionWithoutDaemon(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "svisor.pid")
	err := SendInstruction(pidPath, Instruction{Verb: VerbWakeUp})
	if !errors.Is(err, ErrNoRunningInstance) {
		t.Fatalf("err = %v, want ErrNoRunningInstance", err)
	}
	if err := StopDaemon(pidPath, time.Second); !errors.Is(err, ErrNoRunningInstance) {
		t.Fatalf("stop err = %v, want ErrNoRunningInstance", err)
	}
}
