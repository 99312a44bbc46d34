//go:build windows

package pidfile

import "errors"

var errUnsupported = errors.New("daemon control is not supported on windows")

func Alive(pid int) bool { return false }

func Notify(pid int) error { return errUnsupported }

func Terminate(pid int) error { return errUnsupported }
