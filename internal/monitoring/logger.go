// Package monitoring holds the process-wide diagnostic logger used by the
// pose pipeline. Drop and eviction diagnostics from the tracker core go
// through Logf so tests and embedders can redirect or mute them.
package monitoring

import (
	"fmt"
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags every line with "[tag] " before
// delegating to the current Logf.
func Prefixed(tag string) func(format string, v ...interface{}) {
	prefix := fmt.Sprintf("[%s] ", tag)
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}

// RateLimited wraps a logger so that only every nth call is emitted. The
// first call always logs. Hot per-frame paths use it for drop diagnostics.
func RateLimited(every int64, f func(format string, v ...interface{})) func(format string, v ...interface{}) {
	if every <= 1 {
		return f
	}
	var n atomic.Int64
	return func(format string, v ...interface{}) {
		if (n.Add(1)-1)%every == 0 {
			f(format, v...)
		}
	}
}
