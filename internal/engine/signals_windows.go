//go:build windows

package engine

import "os"

var loopSignals = []os.Signal{os.Interrupt}

func isStopSignal(sig os.Signal) bool { return sig == os.Interrupt }
