package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/simplevisor/simplevisor/internal/config"
	"github.com/simplevisor/simplevisor/internal/engine"
)

// Exit codes.
const (
	exitOK            = 0
	exitMismatch      = 1
	exitConfiguration = 2
	exitNotFound      = 3
	exitInternal      = 4
)

func main() {
	root := buildRoot()
	err := root.Execute()
	if err != nil && !errors.Is(err, errCheckMismatch) {
		_, _ = fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCodeFor(err))
}

func exitCodeFor(err error) int {
	var cfgErr *config.Error
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errCheckMismatch):
		return exitMismatch
	case errors.As(err, &cfgErr), errors.Is(err, engine.ErrInvalidArguments):
		return exitConfiguration
	case errors.Is(err, engine.ErrEntryNotFound), errors.Is(err, engine.ErrNoRunningInstance):
		return exitNotFound
	default:
		return exitInternal
	}
}
