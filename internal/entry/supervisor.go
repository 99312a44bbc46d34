package entry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/simplevisor/simplevisor/internal/metrics"
)

// Strategy is a supervisor's policy for reacting to unhealthy children.
type Strategy string

const (
	// OneForOne repairs only the unhealthy child; healthy siblings are untouched.
	OneForOne Strategy = "one_for_one"
	// OneForAll stops all children (reverse order) and restarts the expected
	// ones (declaration order) whenever any child is unhealthy.
	OneForAll Strategy = "one_for_all"
	// RestForOne stops and restarts the unhealthy child and every child
	// declared after it; earlier children are untouched.
	RestForOne Strategy = "rest_for_one"
)

// Supervisor defaults.
const (
	DefaultMaxRestarts = 3
	DefaultMaxTime     = 60 * time.Second
)

// SupervisorSpec declares an internal tree node.
type SupervisorSpec struct {
	Name        string        `json:"name" mapstructure:"name"`
	Expected    string        `json:"expected" mapstructure:"expected"`
	Strategy    string        `json:"strategy" mapstructure:"strategy"`
	// MaxRestarts distinguishes unset (nil, take the default) from an
	// explicit 0, which fails the supervisor on its first adjustment.
	MaxRestarts *int          `json:"max_restarts,omitempty" mapstructure:"max_restarts"`
	MaxTime     time.Duration `json:"max_time" mapstructure:"max_time"`
}

// Supervisor governs an ordered set of children with a restart strategy and a
// sliding-window restart budget. Children are always stopped in reverse of
// declaration order and started in declaration order: later-declared children
// may depend on earlier ones.
type Supervisor struct {
	name     string
	expected State
	observed State

	strategy    Strategy
	maxRestarts int
	maxTime     time.Duration

	children []Entry
	byName   map[string]Entry

	restartLog []time.Time
	failed     bool

	log   *slog.Logger
	clock func() time.Time
}

// NewSupervisor validates spec and wraps the given children. Sibling names
// must be unique and the child list non-empty.
func NewSupervisor(spec SupervisorSpec, children []Entry, log *slog.Logger) (*Supervisor, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("supervisor requires a name")
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("empty supervisor found: %s", spec.Name)
	}
	strategy := Strategy(spec.Strategy)
	if spec.Strategy == "" {
		strategy = OneForOne
	}
	switch strategy {
	case OneForOne, OneForAll, RestForOne:
	default:
		return nil, fmt.Errorf("supervisor %s does not support strategy: %s", spec.Name, spec.Strategy)
	}
	expected, err := parseExpected(spec.Expected, Running)
	if err != nil {
		return nil, fmt.Errorf("supervisor %s: %w", spec.Name, err)
	}
	maxRestarts := DefaultMaxRestarts
	if spec.MaxRestarts != nil {
		if *spec.MaxRestarts < 0 {
			return nil, fmt.Errorf("supervisor %s: max_restarts must not be negative: %d", spec.Name, *spec.MaxRestarts)
		}
		maxRestarts = *spec.MaxRestarts
	}
	maxTime := spec.MaxTime
	if maxTime <= 0 {
		maxTime = DefaultMaxTime
	}
	byName := make(map[string]Entry, len(children))
	for _, c := range children {
		if _, dup := byName[c.Name()]; dup {
			return nil, fmt.Errorf("supervisor %s got two entries with the same name: %s", spec.Name, c.Name())
		}
		byName[c.Name()] = c
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		name:        spec.Name,
		expected:    expected,
		observed:    Unknown,
		strategy:    strategy,
		maxRestarts: maxRestarts,
		maxTime:     maxTime,
		children:    children,
		byName:      byName,
		log:         log.With("supervisor", spec.Name),
		clock:       time.Now,
	}, nil
}

func (s *Supervisor) Name() string         { return s.name }
func (s *Supervisor) Expected() State      { return s.expected }
func (s *Supervisor) SetExpected(st State) { s.expected = st }
func (s *Supervisor) Observed() State      { return s.observed }
func (s *Supervisor) SetObserved(st State) { s.observed = st }
func (s *Supervisor) Strategy() Strategy   { return s.strategy }
func (s *Supervisor) Failed() bool         { return s.failed }
func (s *Supervisor) String() string       { return "supervisor " + s.name }

// Children returns the ordered child list. Callers must not modify it.
func (s *Supervisor) Children() []Entry { return s.children }

// Child returns the direct child with the given name, or nil.
func (s *Supervisor) Child(name string) Entry { return s.byName[name] }

// RestartLog returns a copy of the current adjustment timestamps.
func (s *Supervisor) RestartLog() []time.Time {
	out := make([]time.Time, len(s.restartLog))
	copy(out, s.restartLog)
	return out
}

// RestoreHistory loads restart accounting persisted by a previous run.
func (s *Supervisor) RestoreHistory(log []time.Time, failed bool) {
	s.restartLog = PruneLog(log, s.clock(), s.maxTime)
	s.failed = failed
	if failed {
		s.observed = Dead
		metrics.SetSupervisorFailed(s.name, true)
	}
}

// Probe derives the supervisor's state from a read-only probe of its
// children: running iff every child matches its expected state and the
// supervisor has not failed; stopped iff no child is expected to run;
// dead otherwise.
func (s *Supervisor) Probe() (State, error) {
	if s.failed {
		return Dead, nil
	}
	anyExpected := false
	allHealthy := true
	for _, c := range s.children {
		if c.Expected() == Running {
			anyExpected = true
		}
		st, err := c.Probe()
		if err != nil || st != c.Expected() {
			allHealthy = false
		}
	}
	switch {
	case !anyExpected:
		return Stopped, nil
	case allHealthy:
		return Running, nil
	default:
		return Dead, nil
	}
}

// Start brings up the expected-running children in declaration order.
func (s *Supervisor) Start() error {
	s.log.Debug("calling start", "strategy", s.strategy)
	var firstErr error
	for _, c := range s.children {
		if c.Expected() != Running {
			continue
		}
		if err := c.Start(); err != nil {
			s.log.Error("child start failed", "child", c.Name(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.observed = s.deriveObserved()
	return firstErr
}

// Stop brings down all children in reverse declaration order.
func (s *Supervisor) Stop() error {
	s.log.Debug("calling stop", "strategy", s.strategy)
	var firstErr error
	for i := len(s.children) - 1; i >= 0; i-- {
		if err := s.children[i].Stop(); err != nil {
			s.log.Error("child stop failed", "child", s.children[i].Name(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.observed = s.deriveObserved()
	return firstErr
}

// Restart stops the subtree, clears the failed flag and the restart budget,
// and starts the expected children again. This is the only way to bring a
// failed supervisor back into supervision.
func (s *Supervisor) Restart() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.restartLog = nil
	s.failed = false
	metrics.SetSupervisorFailed(s.name, false)
	return s.Start()
}

// Check audits the whole subtree read-only.
func (s *Supervisor) Check() (bool, []string) {
	healthy := true
	var detail []string
	for _, c := range s.children {
		ok, lines := c.Check()
		healthy = healthy && ok
		for _, l := range lines {
			detail = append(detail, "  "+l)
		}
	}
	if s.failed {
		healthy = false
		detail = append(detail, fmt.Sprintf("  %s: WARNING, restart budget exceeded", s.name))
	}
	head := fmt.Sprintf("%s: OK, as expected", s.name)
	if !healthy {
		head = fmt.Sprintf("%s: WARNING, not expected", s.name)
	}
	return healthy, append([]string{head}, detail...)
}

// Supervise runs one supervision cycle bottom-up: probe and classify every
// child, repair the unhealthy ones per the strategy, and account each repair
// against the restart budget. It returns false when the supervisor is (or
// becomes) failed, in which case the parent treats it as a dead leaf.
func (s *Supervisor) Supervise() bool {
	if s.failed {
		// inert until explicitly restarted
		s.observed = Dead
		return false
	}
	s.log.Debug("supervising", "strategy", s.strategy)

	healthy := make([]bool, len(s.children))
	for i, c := range s.children {
		if sub, ok := c.(*Supervisor); ok {
			healthy[i] = sub.Supervise()
			continue
		}
		st, err := c.Probe()
		c.SetObserved(st)
		if err != nil {
			s.log.Warn("child status unavailable", "child", c.Name(), "err", err)
		}
		healthy[i] = err == nil && st == c.Expected()
	}

	firstBad := -1
	for i := range healthy {
		if !healthy[i] {
			firstBad = i
			break
		}
	}
	if firstBad < 0 {
		s.observed = s.deriveObserved()
		return true
	}

	now := s.clock()
	switch s.strategy {
	case OneForOne:
		for i, c := range s.children {
			if healthy[i] {
				continue
			}
			if err := s.repairChild(c); err != nil {
				s.log.Error("adjustment failed", "child", c.Name(), "err", err)
			}
			if s.recordAdjustment(now) {
				s.declareFailed()
				return false
			}
		}
	case OneForAll:
		s.stopRange(0)
		s.startRange(0)
		if s.recordAdjustment(now) {
			s.declareFailed()
			return false
		}
	case RestForOne:
		s.stopRange(firstBad)
		s.startRange(firstBad)
		if s.recordAdjustment(now) {
			s.declareFailed()
			return false
		}
	}
	s.observed = s.deriveObserved()
	return true
}

// repairChild repairs one unhealthy child under one_for_one: services are
// adjusted toward their expected state, a failed child supervisor is
// explicitly restarted (which clears its budget).
func (s *Supervisor) repairChild(c Entry) error {
	if sub, ok := c.(*Supervisor); ok {
		return sub.Restart()
	}
	if svc, ok := c.(*Service); ok {
		_, err := svc.Repair()
		return err
	}
	return c.Restart()
}

// stopRange stops children at positions >= from, in reverse declaration order.
func (s *Supervisor) stopRange(from int) {
	for i := len(s.children) - 1; i >= from; i-- {
		if err := s.children[i].Stop(); err != nil {
			s.log.Error("child stop failed", "child", s.children[i].Name(), "err", err)
		}
	}
}

// startRange starts expected-running children at positions >= from, in
// declaration order. A failed child supervisor is restarted instead so its
// budget clears with the sweep.
func (s *Supervisor) startRange(from int) {
	for i := from; i < len(s.children); i++ {
		c := s.children[i]
		if c.Expected() != Running {
			continue
		}
		var err error
		if sub, ok := c.(*Supervisor); ok && sub.failed {
			err = sub.Restart()
		} else {
			err = c.Start()
		}
		if err != nil {
			s.log.Error("child start failed", "child", c.Name(), "err", err)
		}
	}
}

// recordAdjustment appends one timestamp to the restart log, prunes the
// sliding window, and reports whether the budget is now exceeded.
func (s *Supervisor) recordAdjustment(now time.Time) bool {
	s.restartLog = PruneLog(append(s.restartLog, now), now, s.maxTime)
	metrics.IncAdjustment(s.name)
	return BudgetExceeded(s.restartLog, s.maxRestarts)
}

// declareFailed marks the supervisor failed, stops every still-running child
// best effort, and leaves the subtree inert until an explicit restart.
func (s *Supervisor) declareFailed() {
	s.failed = true
	s.observed = Dead
	metrics.SetSupervisorFailed(s.name, true)
	s.log.Error("restart budget exceeded, supervisor failed",
		"adjustments", len(s.restartLog), "max_restarts", s.maxRestarts, "max_time", s.maxTime)
	for i := len(s.children) - 1; i >= 0; i-- {
		if err := s.children[i].Stop(); err != nil {
			s.log.Error("stop after failure", "child", s.children[i].Name(), "err", err)
		}
	}
}

// deriveObserved computes the aggregate state from the children's recorded
// observed states, mirroring Probe without re-probing.
func (s *Supervisor) deriveObserved() State {
	if s.failed {
		return Dead
	}
	anyExpected := false
	allHealthy := true
	for _, c := range s.children {
		if c.Expected() == Running {
			anyExpected = true
		}
		if c.Observed() != c.Expected() {
			allHealthy = false
		}
	}
	switch {
	case !anyExpected:
		return Stopped
	case allHealthy:
		return Running
	default:
		return Dead
	}
}
