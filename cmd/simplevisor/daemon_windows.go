//go:build windows

package main

import "errors"

func daemonize() error {
	return errors.New("daemon mode is not supported on windows")
}
