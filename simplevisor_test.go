package simplevisor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func writeFacadeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "svisor.toml")
	content := fmt.Sprintf(`
[snapshot]
type = "file"
path = "%[1]s/snapshot.json"

[root]
name = "system"
strategy = "one_for_one"

[[root.entries]]
name = "web"
start = "touch %[1]s/web.up"
stop = "rm -f %[1]s/web.up"
status = "test -f %[1]s/web.up || exit 3"
`, dir)
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, dir
}

func TestFacadeCycleStatusStop(t *testing.T) {
	requireUnix(t)
	cfgPath, dir := writeFacadeConfig(t)

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sv.Close() }()

	sv.Cycle()
	st, err := sv.Status("system/web")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st != Running {
		t.Fatalf("status = %s, want running", st)
	}

	ok, _, err := sv.Check("")
	if err != nil || !ok {
		t.Fatalf("check after cycle: ok=%v err=%v", ok, err)
	}

	if err := sv.Stop("system/web"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "web.up")); !os.IsNotExist(err) {
		t.Fatalf("service still up after stop")
	}
}

func TestFacadeMetrics(t *testing.T) {
	if err := RegisterMetrics(nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if MetricsHandler() == nil {
		t.Fatalf("nil metrics handler")
	}
}
