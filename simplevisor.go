package simplevisor

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/simplevisor/simplevisor/internal/config"
	"github.com/simplevisor/simplevisor/internal/engine"
	"github.com/simplevisor/simplevisor/internal/entry"
	"github.com/simplevisor/simplevisor/internal/metrics"
	"github.com/simplevisor/simplevisor/internal/snapshot"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type State = entry.State

const (
	Running = entry.Running
	Stopped = entry.Stopped
	Dead    = entry.Dead
	Unknown = entry.Unknown
)

type Entry = entry.Entry

type Service = entry.Service

type ServiceSpec = entry.ServiceSpec

type SupervisorSpec = entry.SupervisorSpec

type Config = config.FileConfig

type EntryConfig = config.EntryConfig

type Snapshot = snapshot.Snapshot

// Supervisor is a thin facade over internal/engine.Engine. It provides a
// stable public API for embedding.
type Supervisor struct{ inner *engine.Engine }

// LoadConfig reads a TOML/YAML/JSON config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// New builds a supervisor from config. Pass a nil logger to use slog.Default.
func New(cfg *Config, log *slog.Logger) (*Supervisor, error) {
	inner, err := engine.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Supervisor{inner: inner}, nil
}

func (s *Supervisor) Root() Entry  { return s.inner.Root() }
func (s *Supervisor) Close() error { return s.inner.Close() }

// Cycle runs one supervision pass and persists the snapshot.
func (s *Supervisor) Cycle() { s.inner.Cycle() }

// Run executes the daemon loop until stopped.
func (s *Supervisor) Run() error { return s.inner.Run() }

func (s *Supervisor) Start(path string) error   { return s.inner.StartEntry(path) }
func (s *Supervisor) Stop(path string) error    { return s.inner.StopEntry(path) }
func (s *Supervisor) Restart(path string) error { return s.inner.RestartEntry(path) }

func (s *Supervisor) Status(path string) (State, error) { return s.inner.Status(path) }

func (s *Supervisor) Check(path string) (bool, []string, error) { return s.inner.Check(path) }

// Walk visits root and every entry below it, depth first, passing the
// slash-separated path of each entry.
func Walk(root Entry, fn func(path string, e Entry)) { entry.Walk(root, fn) }

// RegisterMetrics registers the supervision collectors with r
// (prometheus.DefaultRegisterer when r is nil).
func RegisterMetrics(r prometheus.Registerer) error {
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	return metrics.Register(r)
}

// MetricsHandler exposes the collectors over HTTP.
func MetricsHandler() http.Handler { return metrics.Handler() }
