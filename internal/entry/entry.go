// Package entry implements the supervision tree: Service leaves driven by
// external control commands and Supervisor nodes that keep their children in
// the declared expected state via a restart strategy.
//
// Entries are not safe for concurrent use. The engine serializes every
// mutation through a single supervision loop, which removes the need for
// locking inside the tree.
package entry

import (
	"errors"
	"strings"
)

// State is an entry's observed (or expected) condition.
type State string

const (
	Running State = "running"
	Stopped State = "stopped"
	Dead    State = "dead"
	Unknown State = "unknown"
)

// ErrNotFound reports that a slash-separated path matched no entry.
var ErrNotFound = errors.New("entry not found")

// Entry is a node in the supervision tree, either a *Service or a *Supervisor.
type Entry interface {
	Name() string
	Expected() State
	SetExpected(State)
	Observed() State
	SetObserved(State)

	// Probe detects the current state without mutating the entry.
	Probe() (State, error)

	// Start and Stop drive the entry toward the given state directly,
	// without engaging supervision strategies.
	Start() error
	Stop() error
	Restart() error

	// Check audits observed-vs-expected without attempting repair.
	// It returns false plus human-readable detail lines on any mismatch.
	Check() (bool, []string)
}

// Find resolves a slash-separated path ("svisor1/httpd") from root.
// The empty path or the root's own name address the root itself.
func Find(root Entry, path string) (Entry, error) {
	if path == "" {
		return root, nil
	}
	tokens := strings.Split(strings.Trim(path, "/"), "/")
	if tokens[0] != root.Name() {
		return nil, ErrNotFound
	}
	cur := root
	for _, tok := range tokens[1:] {
		sup, ok := cur.(*Supervisor)
		if !ok {
			return nil, ErrNotFound
		}
		next := sup.Child(tok)
		if next == nil {
			return nil, ErrNotFound
		}
		cur = next
	}
	return cur, nil
}

// Walk visits every entry depth-first, leaves last, passing the
// slash-separated path from the root.
func Walk(root Entry, fn func(path string, e Entry)) {
	walk(root, root.Name(), fn)
}

func walk(e Entry, path string, fn func(string, Entry)) {
	fn(path, e)
	if sup, ok := e.(*Supervisor); ok {
		for _, c := range sup.Children() {
			walk(c, path+"/"+c.Name(), fn)
		}
	}
}
