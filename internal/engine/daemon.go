package engine

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/simplevisor/simplevisor/internal/metrics"
	"github.com/simplevisor/simplevisor/internal/pidfile"
)

type loopAction int

const (
	actContinue loopAction = iota
	// actExitKeepChildren leaves children running (stop_supervisor).
	actExitKeepChildren
	// actExitStopChildren stops the whole tree first (stop, SIGTERM, SIGINT).
	actExitStopChildren
)

// Run executes the daemon loop: claim the pidfile, then alternate supervision
// cycles with interruptible sleeps until told to stop. Instructions are
// drained only at the top of an iteration, never mid-cycle, so all mutation
// stays serialized in this goroutine.
func (e *Engine) Run() error {
	if e.cfg.PIDFile == "" {
		return errors.New("daemon mode requires a pidfile")
	}
	if err := pidfile.Acquire(e.cfg.PIDFile); err != nil {
		return err
	}
	defer pidfile.Remove(e.cfg.PIDFile)

	if addr := e.cfg.MetricsListen; addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err == nil {
			e.serveMetrics(addr)
		} else {
			e.log.Warn("metrics disabled", "err", err)
		}
	}

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, loopSignals...)
	defer signal.Stop(sigCh)

	e.log.Info("daemon started", "pid", os.Getpid(), "interval", e.cfg.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	pending := actContinue
	for {
		if pending == actContinue {
			pending = e.applyInstructions()
		}
		switch pending {
		case actExitKeepChildren:
			e.log.Info("daemon stopping, children keep running")
			e.SaveSnapshot()
			return nil
		case actExitStopChildren:
			e.log.Info("daemon stopping, stopping all children")
			err := e.root.Stop()
			e.SaveSnapshot()
			return err
		}

		e.Cycle()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.cfg.Interval)
		select {
		case <-timer.C:
		case sig := <-sigCh:
			if isStopSignal(sig) {
				pending = actExitStopChildren
			}
			// SIGUSR1/SIGHUP just cut the sleep short; the instruction
			// drain at loop-top picks up whatever was delivered.
		}
	}
}

// applyInstructions drains the control file and executes each instruction in
// arrival order. A stop verb wins over everything after it.
func (e *Engine) applyInstructions() loopAction {
	for _, ins := range drainInstructions(e.cfg.PIDFile) {
		e.log.Info("instruction received", "verb", ins.Verb, "path", ins.Path)
		switch ins.Verb {
		case VerbWakeUp:
			// draining already forces an immediate cycle
		case VerbRestartChild:
			if err := e.RestartEntry(ins.Path); err != nil {
				e.log.Error("restart_child failed", "path", ins.Path, "err", err)
			}
		case VerbStopChildren:
			if err := e.StopChildren(); err != nil {
				e.log.Error("stop_children failed", "err", err)
			}
		case VerbStopSupervisor:
			return actExitKeepChildren
		case VerbStop:
			return actExitStopChildren
		default:
			e.log.Warn("unknown instruction ignored", "verb", ins.Verb)
		}
	}
	return actContinue
}

func (e *Engine) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Warn("metrics listener stopped", "err", err)
		}
	}()
	e.log.Info("metrics listening", "addr", addr)
}
