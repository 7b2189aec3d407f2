package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var verbose atomic.Bool

// SetVerbose toggles per-batch diagnostic output. Off by default so
// validation loops do not flood the log with one line per batch.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Verbose reports whether per-batch diagnostics are enabled.
func Verbose() bool {
	return verbose.Load()
}

// Verbosef logs through Logf only when verbose mode is on.
func Verbosef(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}
