// Package config loads the supervision tree definition and daemon settings
// from a TOML, YAML, or JSON file.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"

	"github.com/simplevisor/simplevisor/internal/entry"
	"github.com/simplevisor/simplevisor/internal/logger"
	"github.com/simplevisor/simplevisor/internal/snapshot"
)

// DefaultInterval is the pause between supervision cycles in daemon mode.
const DefaultInterval = 60 * time.Second

// Error marks configuration problems so callers can map them to a distinct
// exit code.
type Error struct{ Err error }

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func configErr(format string, args ...any) error {
	return &Error{Err: fmt.Errorf(format, args...)}
}

// EntryConfig is one node of the configured tree. A node with child entries
// is a supervisor; a leaf is a service. The two sets of fields are mutually
// exclusive.
type EntryConfig struct {
	Name     string `mapstructure:"name"`
	Expected string `mapstructure:"expected"`

	// Supervisor fields. MaxRestarts stays nil when the key is absent so an
	// explicit 0 (zero tolerance) survives to the supervisor.
	Strategy    string        `mapstructure:"strategy"`
	MaxRestarts *int          `mapstructure:"max_restarts"`
	MaxTime     time.Duration `mapstructure:"max_time"`
	Entries     []EntryConfig `mapstructure:"entries"`

	// Service fields.
	Control string        `mapstructure:"control"`
	Start   string        `mapstructure:"start"`
	Stop    string        `mapstructure:"stop"`
	Status  string        `mapstructure:"status"`
	Restart string        `mapstructure:"restart"`
	Pattern string        `mapstructure:"pattern"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FileConfig represents the top-level config structure.
type FileConfig struct {
	PIDFile       string          `mapstructure:"pidfile"`
	Interval      time.Duration   `mapstructure:"interval"`
	MetricsListen string          `mapstructure:"metrics_listen"`
	Path          string          `mapstructure:"path"`
	Log           logger.Config   `mapstructure:"log"`
	Snapshot      snapshot.Config `mapstructure:"snapshot"`
	Root          *EntryConfig    `mapstructure:"root"`
}

// Load reads and decodes the config file at path. The format is inferred
// from the file extension.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, configErr("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, configErr("parse config %s: %w", path, err)
	}
	if fc.Root == nil {
		return nil, configErr("config %s: missing [root] entry", path)
	}
	if fc.Interval <= 0 {
		fc.Interval = DefaultInterval
	}
	return &fc, nil
}

// BuildTree turns the declared root into a live entry tree. The root is
// usually a supervisor but may be a lone service. Children inherit the
// parent's expected state and exec path unless they declare their own.
func (fc *FileConfig) BuildTree(log *slog.Logger) (entry.Entry, error) {
	e, err := buildEntry(*fc.Root, "", fc.Path, log)
	if err != nil {
		return nil, &Error{Err: err}
	}
	return e, nil
}

func buildEntry(ec EntryConfig, inheritedExpected, inheritedPath string, log *slog.Logger) (entry.Entry, error) {
	expected := ec.Expected
	if expected == "" {
		expected = inheritedExpected
	}
	path := ec.Path
	if path == "" {
		path = inheritedPath
	}

	if len(ec.Entries) == 0 {
		if ec.Strategy != "" {
			return nil, fmt.Errorf("entry %s declares a strategy but no children", ec.Name)
		}
		return entry.NewService(entry.ServiceSpec{
			Name:     ec.Name,
			Expected: expected,
			Control:  ec.Control,
			Start:    ec.Start,
			Stop:     ec.Stop,
			Status:   ec.Status,
			Restart:  ec.Restart,
			Pattern:  ec.Pattern,
			Path:     path,
			Timeout:  ec.Timeout,
		}, nil, log)
	}

	if ec.Control != "" || ec.Start != "" || ec.Stop != "" || ec.Status != "" || ec.Restart != "" || ec.Pattern != "" {
		return nil, fmt.Errorf("entry %s declares both children and service commands", ec.Name)
	}
	children := make([]entry.Entry, 0, len(ec.Entries))
	for _, cc := range ec.Entries {
		child, err := buildEntry(cc, expected, path, log)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return entry.NewSupervisor(entry.SupervisorSpec{
		Name:        ec.Name,
		Expected:    expected,
		Strategy:    ec.Strategy,
		MaxRestarts: ec.MaxRestarts,
		MaxTime:     ec.MaxTime,
	}, children, log)
}
