// Package logging wraps charmbracelet/log: structured, leveled logs with
// keyed fields, no bespoke logging abstraction on top.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is a thin alias so callers don't need to import charmbracelet/log
// directly; it keeps the dependency confined to this package.
type Logger = *log.Logger

// New creates a logger writing to stderr. debug controls whether Debug-level
// records are emitted.
func New(debug bool) Logger {
	lvl := log.InfoLevel
	if debug {
		lvl = log.DebugLevel
	}
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           lvl,
	})
	return l
}

// Discard returns a logger that drops everything, for tests that don't
// want log noise.
func Discard() Logger {
	l := log.New(discardWriter{})
	l.SetLevel(log.FatalLevel + 1)
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
