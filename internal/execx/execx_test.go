package execx

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestSplitTokensUnquotesPercentEncoding(t *testing.T) {
	got := SplitTokens("greet --msg hello%20world now")
	want := []string{"greet", "--msg", "hello world", "now"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTokensLeavesPlusAndBadEscapesAlone(t *testing.T) {
	// plus signs survive, and tokens with invalid escapes pass through verbatim
	got := SplitTokens("run a+b %zz")
	if len(got) != 3 || got[1] != "a+b" || got[2] != "%zz" {
		t.Fatalf("tokens = %v", got)
	}
}

func TestParseExplicitShell(t *testing.T) {
	if after, ok := parseExplicitShell("sh -c 'echo hi'"); !ok || after != "echo hi" {
		t.Fatalf("got %q, %v", after, ok)
	}
	if after, ok := parseExplicitShell("/bin/sh -c \"echo hi\""); !ok || after != "echo hi" {
		t.Fatalf("got %q, %v", after, ok)
	}
	if _, ok := parseExplicitShell("echo sh -c hi"); ok {
		t.Fatalf("mid-line shell must not be detected")
	}
}

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	skipOnWindows(t)
	r := ExecRunner{}

	res, err := r.Run(context.Background(), "sh -c 'echo out; echo err >&2; exit 3'", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Code != 3 {
		t.Fatalf("code = %d, want 3", res.Code)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
}

func TestRunPlainCommand(t *testing.T) {
	skipOnWindows(t)
	r := ExecRunner{}
	res, err := r.Run(context.Background(), "echo hello%20world", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Code != 0 || strings.TrimSpace(res.Stdout) != "hello world" {
		t.Fatalf("code=%d stdout=%q", res.Code, res.Stdout)
	}
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)
	r := ExecRunner{}
	start := time.Now()
	res, err := r.Run(context.Background(), "sleep 5", Options{Timeout: 200 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if res.Code == 0 {
		t.Fatalf("timed-out command must not report success")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout did not kill the command promptly")
	}
}

func TestRunSpawnFailure(t *testing.T) {
	skipOnWindows(t)
	r := ExecRunner{}
	res, err := r.Run(context.Background(), "definitely-not-a-command-xyz", Options{})
	if err == nil {
		t.Fatalf("expected spawn error")
	}
	if res.Code == 0 {
		t.Fatalf("spawn failure must not report success")
	}
}

func TestFakeScripting(t *testing.T) {
	f := NewFake()
	f.Script("check", Result{Code: 3}, Result{Code: 0})

	if res, _ := f.Run(context.Background(), "check", Options{}); res.Code != 3 {
		t.Fatalf("first = %d, want 3", res.Code)
	}
	// last result repeats once the queue drains
	for i := 0; i < 2; i++ {
		if res, _ := f.Run(context.Background(), "check", Options{}); res.Code != 0 {
			t.Fatalf("repeat = %d, want 0", res.Code)
		}
	}
	if res, _ := f.Run(context.Background(), "unknown", Options{}); res.Code != 1 {
		t.Fatalf("unscripted command must fail")
	}
	if f.CallCount("check") != 3 {
		t.Fatalf("calls = %v", f.Calls())
	}
}
