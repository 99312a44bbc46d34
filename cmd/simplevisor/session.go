package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/simplevisor/simplevisor/internal/config"
	"github.com/simplevisor/simplevisor/internal/engine"
	"github.com/simplevisor/simplevisor/internal/logger"
)

// session holds the loaded config and the logger every subcommand needs.
type session struct {
	cfg    *config.FileConfig
	log    *slog.Logger
	closer io.Closer
}

func newSession(flags *GlobalFlags) (*session, error) {
	if flags.ConfigPath == "" {
		return nil, fmt.Errorf("%w: --config is required", engine.ErrInvalidArguments)
	}
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	log, closer := logger.New(cfg.Log)
	slog.SetDefault(log)
	return &session{cfg: cfg, log: log, closer: closer}, nil
}

func (s *session) Close() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}

func (s *session) engine() (*engine.Engine, error) {
	return engine.New(s.cfg, s.log)
}

// requirePIDFile guards daemon-targeted commands.
func (s *session) requirePIDFile() error {
	if s.cfg.PIDFile == "" {
		return fmt.Errorf("%w: no pidfile configured", engine.ErrInvalidArguments)
	}
	return nil
}
