// Package engine wires the configured entry tree, the snapshot store, and
// the daemon loop together, and exposes the operations behind each CLI
// command.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/simplevisor/simplevisor/internal/config"
	"github.com/simplevisor/simplevisor/internal/entry"
	"github.com/simplevisor/simplevisor/internal/metrics"
	"github.com/simplevisor/simplevisor/internal/snapshot"
)

var (
	// ErrEntryNotFound reports a path that matches no entry in the tree.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrNoRunningInstance reports a daemon-targeted command with no live daemon.
	ErrNoRunningInstance = errors.New("no running instance")
	// ErrInvalidArguments reports a command/flag combination that makes no sense.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Engine owns one supervision tree. All mutation goes through the caller's
// single goroutine; the engine does no locking of its own.
type Engine struct {
	cfg   *config.FileConfig
	root  entry.Entry
	store snapshot.Store
	log   *slog.Logger
}

// New builds the tree from config and opens the snapshot store. Persisted
// state is restored before the first operation; a corrupt snapshot degrades
// to a cold start with a warning.
func New(cfg *config.FileConfig, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	root, err := cfg.BuildTree(log)
	if err != nil {
		return nil, err
	}
	store, err := snapshot.New(cfg.Snapshot)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, root: root, store: store, log: log}
	e.restoreSnapshot()
	return e, nil
}

func (e *Engine) Root() entry.Entry { return e.root }

func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Resolve finds the entry addressed by a slash-separated path; the empty
// path addresses the root.
func (e *Engine) Resolve(path string) (entry.Entry, error) {
	ent, err := entry.Find(e.root, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}
	return ent, nil
}

// Cycle runs one full supervision pass at the root, logs every state
// transition it caused, and persists the snapshot.
func (e *Engine) Cycle() {
	before := e.states()
	switch root := e.root.(type) {
	case *entry.Supervisor:
		root.Supervise()
	case *entry.Service:
		st, err := root.Probe()
		root.SetObserved(st)
		if err != nil || st != root.Expected() {
			if _, err := root.Repair(); err != nil {
				e.log.Error("adjustment failed", "entry", root.Name(), "err", err)
			}
		}
	}
	after := e.states()
	for path, st := range after {
		if prev := before[path]; prev != st {
			e.log.Info("state changed", "entry", path, "from", string(prev), "to", string(st))
		}
		publishState(path, st)
	}
	metrics.IncCycle()
	e.SaveSnapshot()
}

// StartEntry applies the addressed entry's own start directly, without
// engaging strategies.
func (e *Engine) StartEntry(path string) error {
	ent, err := e.Resolve(path)
	if err != nil {
		return err
	}
	err = ent.Start()
	e.SaveSnapshot()
	return err
}

// StopEntry applies the addressed entry's own stop directly.
func (e *Engine) StopEntry(path string) error {
	ent, err := e.Resolve(path)
	if err != nil {
		return err
	}
	err = ent.Stop()
	e.SaveSnapshot()
	return err
}

// RestartEntry stops then starts the addressed entry. Restarting a failed
// supervisor clears its restart budget.
func (e *Engine) RestartEntry(path string) error {
	ent, err := e.Resolve(path)
	if err != nil {
		return err
	}
	err = ent.Restart()
	e.SaveSnapshot()
	return err
}

// Status probes the addressed entry read-only.
func (e *Engine) Status(path string) (entry.State, error) {
	ent, err := e.Resolve(path)
	if err != nil {
		return entry.Unknown, err
	}
	st, probeErr := ent.Probe()
	if probeErr != nil {
		return st, probeErr
	}
	return st, nil
}

// Check audits the addressed entry read-only. The bool reports whether
// everything matched its expected state.
func (e *Engine) Check(path string) (bool, []string, error) {
	ent, err := e.Resolve(path)
	if err != nil {
		return false, nil, err
	}
	ok, detail := ent.Check()
	return ok, detail, nil
}

// StopChildren stops every entry and pins the whole tree's expected state to
// stopped, so a still-running daemon keeps supervising an all-stopped tree.
func (e *Engine) StopChildren() error {
	entry.Walk(e.root, func(_ string, ent entry.Entry) {
		ent.SetExpected(entry.Stopped)
	})
	err := e.root.Stop()
	e.SaveSnapshot()
	return err
}

func (e *Engine) states() map[string]entry.State {
	out := make(map[string]entry.State)
	entry.Walk(e.root, func(path string, ent entry.Entry) {
		out[path] = ent.Observed()
	})
	return out
}

func publishState(path string, st entry.State) {
	for _, s := range []entry.State{entry.Running, entry.Stopped, entry.Dead, entry.Unknown} {
		metrics.SetEntryState(path, string(s), s == st)
	}
}

// SaveSnapshot persists the current tree state. Persistence failures are
// warnings, never fatal.
func (e *Engine) SaveSnapshot() {
	if e.store == nil {
		return
	}
	snap := snapshot.Snapshot{}
	entry.Walk(e.root, func(path string, ent entry.Entry) {
		st := snapshot.EntryState{Observed: string(ent.Observed())}
		if sup, ok := ent.(*entry.Supervisor); ok {
			st.RestartLog = sup.RestartLog()
			st.Failed = sup.Failed()
		}
		snap[path] = st
	})
	if err := e.store.Save(snap); err != nil {
		e.log.Warn("snapshot save failed", "err", err)
	}
}

func (e *Engine) restoreSnapshot() {
	if e.store == nil {
		return
	}
	snap, err := e.store.Load()
	if err != nil {
		e.log.Warn("snapshot unreadable, starting cold", "err", err)
		return
	}
	if len(snap) == 0 {
		return
	}
	entry.Walk(e.root, func(path string, ent entry.Entry) {
		st, ok := snap[path]
		if !ok {
			return
		}
		switch entry.State(st.Observed) {
		case entry.Running, entry.Stopped, entry.Dead:
			ent.SetObserved(entry.State(st.Observed))
		default:
			ent.SetObserved(entry.Unknown)
		}
		if sup, isSup := ent.(*entry.Supervisor); isSup {
			sup.RestoreHistory(st.RestartLog, st.Failed)
		}
	})
}
