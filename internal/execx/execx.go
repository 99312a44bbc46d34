// Package execx is the single process-control capability of the supervisor:
// it runs external command lines synchronously, enforcing a timeout and
// capturing exit code and output. Entries never touch os/exec directly, which
// keeps the strategy logic testable against a fake Runner.
package execx

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout reports that an invoked command exceeded its timeout and was killed.
var ErrTimeout = errors.New("command timed out")

// Result carries the outcome of one command invocation.
// Code follows LSB init-script conventions for status commands
// (0 running, 3 stopped, anything else dirty).
type Result struct {
	Code   int
	Stdout string
	Stderr string
}

// Options tune a single invocation.
type Options struct {
	// Path, when non-empty, replaces PATH for the invoked command.
	Path string
	// Timeout bounds the invocation; <= 0 means no limit.
	Timeout time.Duration
}

// Runner runs one external command line.
// Implementations must be safe for sequential reuse; the supervision cycle
// never invokes a Runner concurrently.
type Runner interface {
	Run(ctx context.Context, cmdline string, opts Options) (Result, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmdline string, opts Options) (Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	cmd := buildCommand(ctx, cmdline)
	if opts.Path != "" {
		cmd.Env = append(os.Environ(), "PATH="+opts.Path)
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	res := Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if err == nil {
		return res, nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		res.Code = 1
		if res.Stderr == "" {
			res.Stderr = "timeout"
		}
		return res, ErrTimeout
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.Code = ee.ExitCode()
		return res, nil
	}
	// spawn failure (command not found, permission, ...)
	res.Code = 1
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	return res, err
}

// buildCommand constructs an *exec.Cmd for cmdline.
// It avoids invoking a shell when not necessary and respects an explicit
// shell invocation already present in the command string (e.g. "sh -c '...'"),
// avoiding double-wrapping with another shell.
func buildCommand(ctx context.Context, cmdline string) *exec.Cmd {
	cmdStr := strings.TrimSpace(cmdline)
	if cmdStr == "" {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Path is overridden.
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*`$\"'(){}[]~") {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	}
	parts := SplitTokens(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// ok: intentional execution of a configured control command
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr. It preserves the substring after "-c " verbatim
// to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}

// SplitTokens splits a command line on whitespace and URL-unquotes each token,
// so arguments containing spaces can be declared in url-like style
// ("--greeting hello%20world").
func SplitTokens(cmdline string) []string {
	fields := strings.Fields(cmdline)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if tok, err := url.PathUnescape(f); err == nil {
			out = append(out, tok)
		} else {
			out = append(out, f)
		}
	}
	return out
}
