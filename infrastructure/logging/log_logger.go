// Package logging is the sole adapter between application.Logger and the
// standard library's log package; no other package in this module imports
// "log" directly.
package logging

import (
	"log"

	"bhid/application"
)

type StdLogger struct {
	prefix string
}

// NewStdLogger returns a Logger that prefixes every line with component,
// e.g. "tracker: ", "peer: ", "front: ".
func NewStdLogger(component string) application.Logger {
	return &StdLogger{prefix: component}
}

func (l *StdLogger) Printf(format string, v ...any) {
	log.Printf(l.prefix+format, v...)
}
