package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simplevisor",
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Number of completed supervision cycles.",
		},
	)
	commands = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simplevisor",
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "Number of external control commands invoked.",
		},
	)
	adjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simplevisor",
			Subsystem: "supervisor",
			Name:      "adjustments_total",
			Help:      "Number of repair adjustments charged against a supervisor's restart budget.",
		}, []string{"supervisor"},
	)
	supervisorFailed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "simplevisor",
			Subsystem: "supervisor",
			Name:      "failed",
			Help:      "Whether the supervisor has exceeded its restart budget (1 = failed).",
		}, []string{"supervisor"},
	)
	entryState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "simplevisor",
			Subsystem: "entry",
			Name:      "state",
			Help:      "Observed entry state (1 = entry is in this state, 0 = it is not).",
		}, []string{"path", "state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{cycles, commands, adjustments, supervisorFailed, entryState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCycle() {
	if regOK.Load() {
		cycles.Inc()
	}
}

func IncCommand() {
	if regOK.Load() {
		commands.Inc()
	}
}

func IncAdjustment(supervisor string) {
	if regOK.Load() {
		adjustments.WithLabelValues(supervisor).Inc()
	}
}

func SetSupervisorFailed(supervisor string, failed bool) {
	if regOK.Load() {
		var value float64
		if failed {
			value = 1
		}
		supervisorFailed.WithLabelValues(supervisor).Set(value)
	}
}

func SetEntryState(path, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		entryState.WithLabelValues(path, state).Set(value)
	}
}
