package entry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/simplevisor/simplevisor/internal/execx"
	"github.com/simplevisor/simplevisor/internal/metrics"
	"github.com/simplevisor/simplevisor/internal/pattern"
)

const (
	// DefaultTimeout bounds every invoked control command.
	DefaultTimeout = 60 * time.Second
	// startGrace is how long a service gets to come up before the
	// post-start status re-check.
	startGrace = 400 * time.Millisecond
)

// ServiceSpec declares a leaf service.
//
// Commands follow LSB init-script conventions: a status command exits 0 when
// the service runs, 3 when it is stopped, anything else is a dirty state.
// When Control is set, start/stop/status default to "<control> <verb>".
// When neither Control nor Status is set, the process table is scanned for
// Pattern (or the start command line if Pattern is empty).
type ServiceSpec struct {
	Name     string        `json:"name" mapstructure:"name"`
	Expected string        `json:"expected" mapstructure:"expected"`
	Control  string        `json:"control" mapstructure:"control"`
	Start    string        `json:"start" mapstructure:"start"`
	Stop     string        `json:"stop" mapstructure:"stop"`
	Status   string        `json:"status" mapstructure:"status"`
	Restart  string        `json:"restart" mapstructure:"restart"`
	Pattern  string        `json:"pattern" mapstructure:"pattern"`
	Path     string        `json:"path" mapstructure:"path"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Service is a leaf entry controlled purely through external commands or a
// process-table pattern.
type Service struct {
	name     string
	expected State
	observed State

	control    string
	startCmd   string
	stopCmd    string
	statusCmd  string
	restartCmd string
	pathEnv    string
	timeout    time.Duration
	grace      time.Duration

	matcher *pattern.Matcher
	runner  execx.Runner
	log     *slog.Logger
}

// NewService validates spec and builds a Service. At least one of
// start/control must be given, and pattern is mutually exclusive with
// explicit status/stop/control commands.
func NewService(spec ServiceSpec, runner execx.Runner, log *slog.Logger) (*Service, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("service requires a name")
	}
	if spec.Start == "" && spec.Control == "" {
		return nil, fmt.Errorf("service %s requires one of start or control", spec.Name)
	}
	if spec.Start != "" && spec.Control != "" {
		return nil, fmt.Errorf("service %s accepts either start or control, not both", spec.Name)
	}
	if spec.Pattern != "" {
		for verb, v := range map[string]string{"status": spec.Status, "stop": spec.Stop, "control": spec.Control} {
			if v != "" {
				return nil, fmt.Errorf("service %s: pattern is mutually exclusive with %s", spec.Name, verb)
			}
		}
	}
	expected, err := parseExpected(spec.Expected, Running)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", spec.Name, err)
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if runner == nil {
		runner = execx.ExecRunner{}
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		name:       spec.Name,
		expected:   expected,
		observed:   Unknown,
		control:    spec.Control,
		startCmd:   spec.Start,
		stopCmd:    spec.Stop,
		statusCmd:  spec.Status,
		restartCmd: spec.Restart,
		pathEnv:    spec.Path,
		timeout:    timeout,
		grace:      startGrace,
		runner:     runner,
		log:        log.With("service", spec.Name),
	}
	if s.control == "" && s.statusCmd == "" {
		pat := spec.Pattern
		if pat == "" {
			pat = spec.Start
		}
		m, err := pattern.New(pat)
		if err != nil {
			return nil, fmt.Errorf("service %s pattern not valid: %w", spec.Name, err)
		}
		s.matcher = m
		s.log.Debug("using process table pattern", "pattern", pat)
	}
	return s, nil
}

func parseExpected(v string, def State) (State, error) {
	switch State(v) {
	case "":
		return def, nil
	case Running, Stopped:
		return State(v), nil
	default:
		return Unknown, fmt.Errorf("invalid expected state: %q", v)
	}
}

func (s *Service) Name() string         { return s.name }
func (s *Service) Expected() State      { return s.expected }
func (s *Service) SetExpected(st State) { s.expected = st }
func (s *Service) Observed() State      { return s.observed }
func (s *Service) SetObserved(st State) { s.observed = st }
func (s *Service) String() string       { return "service " + s.name }

// cmdFor resolves the command line for a verb, applying the control prefix
// when no explicit override is declared.
func (s *Service) cmdFor(verb string) string {
	var override string
	switch verb {
	case "start":
		override = s.startCmd
	case "stop":
		override = s.stopCmd
	case "status":
		override = s.statusCmd
	case "restart":
		override = s.restartCmd
	}
	if s.control != "" && override == "" {
		return s.control + " " + verb
	}
	return override
}

func (s *Service) run(cmdline string) execx.Result {
	s.log.Debug("executing", "cmd", cmdline)
	metrics.IncCommand()
	res, err := s.runner.Run(context.Background(), cmdline, execx.Options{
		Path:    s.pathEnv,
		Timeout: s.timeout,
	})
	if err != nil {
		s.log.Warn("command failed", "cmd", cmdline, "err", err)
	}
	s.log.Debug("command returned", "cmd", cmdline, "code", res.Code,
		"stdout", res.Stdout, "stderr", res.Stderr)
	return res
}

// Probe detects the current state: status command when resolvable, process
// table scan otherwise. It never mutates the service.
func (s *Service) Probe() (State, error) {
	if s.matcher != nil {
		pids, err := s.matcher.PIDs()
		if err != nil {
			return Unknown, fmt.Errorf("service %s: %w", s.name, err)
		}
		if len(pids) > 0 {
			return Running, nil
		}
		return Stopped, nil
	}
	res := s.run(s.cmdFor("status"))
	switch res.Code {
	case 0:
		return Running, nil
	case 3:
		return Stopped, nil
	default:
		return Dead, nil
	}
}

// Start brings the service up. Already-running services are a no-op. After
// invoking the start command the status is re-checked once past a short grace
// delay; a service that is still not running is recorded as dead.
func (s *Service) Start() error {
	if st, _ := s.Probe(); st == Running {
		s.observed = Running
		return nil
	}
	res := s.run(s.cmdFor("start"))
	if s.grace > 0 {
		time.Sleep(s.grace)
	}
	st, err := s.Probe()
	s.observed = st
	if st == Running {
		s.log.Info("started")
		return nil
	}
	s.observed = Dead
	if err != nil {
		return err
	}
	return fmt.Errorf("service %s did not start (start exit %d)", s.name, res.Code)
}

// Stop brings the service down. When no stop command is resolvable the
// matched processes are terminated, SIGTERM first then SIGKILL.
func (s *Service) Stop() error {
	st, perr := s.Probe()
	if st == Stopped {
		s.observed = Stopped
		return nil
	}
	if perr != nil {
		return perr
	}
	if s.control == "" && s.stopCmd == "" {
		// no stop command and no matcher (start+status only) leaves
		// nothing to kill; the re-probe below decides the outcome
		if s.matcher != nil {
			pids, err := s.matcher.PIDs()
			if err != nil {
				return fmt.Errorf("service %s: %w", s.name, err)
			}
			if len(pids) > 0 {
				if err := pattern.KillPIDs(pids, s.timeout); err != nil {
					return fmt.Errorf("service %s: kill: %w", s.name, err)
				}
				s.log.Info("stopped by killing processes", "pids", pids)
			}
		}
	} else {
		s.run(s.cmdFor("stop"))
	}
	st, err := s.Probe()
	s.observed = st
	if st == Stopped {
		s.log.Info("stopped")
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("service %s did not stop (still %s)", s.name, st)
}

// Restart uses the custom restart command when one applies, otherwise
// stop followed by start.
func (s *Service) Restart() error {
	useCustom := s.restartCmd != ""
	if s.control != "" {
		// "<control> restart" is the default; "stop+start" forces the split path.
		useCustom = s.restartCmd != "stop+start"
	}
	if useCustom {
		s.run(s.cmdFor("restart"))
		st, err := s.Probe()
		s.observed = st
		if err != nil {
			return err
		}
		if s.expected == Running && st != Running {
			return fmt.Errorf("service %s did not restart (still %s)", s.name, st)
		}
		return nil
	}
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start()
}

// Check compares the probed state against the expected one without any
// repair or mutation of the recorded observed state.
func (s *Service) Check() (bool, []string) {
	st, err := s.Probe()
	if err != nil {
		return false, []string{fmt.Sprintf("%s: WARNING, status unavailable: %v", s.name, err)}
	}
	enabled := s.expected == Running
	switch {
	case enabled && st == Running:
		return true, []string{fmt.Sprintf("%s: OK, running, as expected", s.name)}
	case enabled && st == Stopped:
		return false, []string{fmt.Sprintf("%s: WARNING, not running, not expected", s.name)}
	case !enabled && st == Stopped:
		return true, []string{fmt.Sprintf("%s: OK, not running, as expected", s.name)}
	case !enabled && st == Running:
		return false, []string{fmt.Sprintf("%s: WARNING, found running, not expected", s.name)}
	default:
		return false, []string{fmt.Sprintf("%s: WARNING, in %q state", s.name, st)}
	}
}

// Repair starts/stops the service according to its expected state. It
// returns whether an adjustment was performed; healthy services are left
// untouched.
func (s *Service) Repair() (bool, error) {
	st, err := s.Probe()
	s.observed = st
	if err != nil {
		return false, err
	}
	switch {
	case st == Running && s.expected == Stopped:
		return true, s.Stop()
	case st != Running && s.expected == Running:
		if st == Dead {
			// clear the dirty state before starting again
			if err := s.Stop(); err != nil {
				s.log.Warn("cleanup stop failed", "err", err)
			}
		}
		return true, s.Start()
	case st == Dead:
		return true, s.Stop()
	default:
		return false, nil
	}
}
