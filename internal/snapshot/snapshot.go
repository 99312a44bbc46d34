// Package snapshot persists per-entry runtime state across daemon restarts:
// the last observed state, each supervisor's restart timestamps, and whether
// it had exceeded its budget. A lost or corrupt snapshot degrades to a cold
// start; it is never authoritative over a live probe.
package snapshot

import "time"

// EntryState is the persisted record for one entry, keyed by tree path.
type EntryState struct {
	Observed   string      `json:"observed"`
	RestartLog []time.Time `json:"restart_log,omitempty"`
	Failed     bool        `json:"failed,omitempty"`
}

// Snapshot maps slash-separated entry paths to their persisted state.
type Snapshot map[string]EntryState

// Store persists snapshots. Save must be atomic: a reader never sees a
// half-written snapshot.
type Store interface {
	Save(s Snapshot) error
	Load() (Snapshot, error)
	Close() error
}
