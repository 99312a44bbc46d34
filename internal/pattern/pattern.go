// Package pattern locates service processes in the process table by matching
// their command lines against a regular expression. It backs status and stop
// for services that declare no status/stop command.
package pattern

import (
	"errors"
	"regexp"
)

// ErrUnsupportedPlatform reports that process-table matching is not available
// on this platform; such services must declare a status command instead.
var ErrUnsupportedPlatform = errors.New("process table matching not supported on this platform")

// Matcher finds PIDs whose command line matches a compiled expression.
type Matcher struct {
	expr string
	re   *regexp.Regexp
}

// New compiles expr into a Matcher. The expression is matched against the
// full command line of every process in the table.
func New(expr string) (*Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Matcher{expr: expr, re: re}, nil
}

// String returns the source expression.
func (m *Matcher) String() string { return m.expr }

// PIDs scans the process table and returns the PIDs of matching processes,
// excluding the calling process itself.
func (m *Matcher) PIDs() ([]int32, error) { return scanPIDs(m.re) }
