package execx

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a scripted Runner for tests and dry runs. Command lines are matched
// verbatim against the scripted table; unknown commands fail with exit code 1.
type Fake struct {
	mu      sync.Mutex
	results map[string][]Result
	calls   []string
}

// NewFake returns an empty Fake.
func NewFake() *Fake { return &Fake{results: make(map[string][]Result)} }

// Script queues results for cmdline; each Run consumes one queued result,
// the last one repeating once the queue drains.
func (f *Fake) Script(cmdline string, results ...Result) {
	f.mu.Lock()
	f.results[cmdline] = append(f.results[cmdline], results...)
	f.mu.Unlock()
}

func (f *Fake) Run(_ context.Context, cmdline string, _ Options) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmdline)
	q := f.results[cmdline]
	if len(q) == 0 {
		return Result{Code: 1, Stderr: fmt.Sprintf("unscripted command: %s", cmdline)}, nil
	}
	res := q[0]
	if len(q) > 1 {
		f.results[cmdline] = q[1:]
	}
	return res, nil
}

// Calls returns the command lines run so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times cmdline has been run.
func (f *Fake) CallCount(cmdline string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == cmdline {
			n++
		}
	}
	return n
}
