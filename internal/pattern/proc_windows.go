//go:build windows

package pattern

import (
	"regexp"
	"time"
)

func scanPIDs(_ *regexp.Regexp) ([]int32, error) {
	return nil, ErrUnsupportedPlatform
}

// KillPIDs is unsupported on Windows; services need a stop command there.
func KillPIDs(_ []int32, _ time.Duration) error {
	return ErrUnsupportedPlatform
}

// Alive is unsupported on Windows.
func Alive(_ int) bool { return false }
