// Package log provides the structured logger used by lmassist's
// long-running components (session cache warming, the generator, remote
// sync, and the relay handler). Interactive CLI commands print directly
// to stdout/stderr instead — see internal/cli.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	base    *zap.Logger
	verbose bool
)

// Configure sets whether subsequently-created loggers run in verbose
// (development, human-readable) or quiet (production, JSON) mode.
func Configure(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	base = nil // force rebuild on next Get
}

// Get returns the process-wide base logger, building it lazily.
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		return base
	}
	var l *zap.Logger
	var err error
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.DisableStacktrace = true
		l, err = cfg.Build()
	}
	if err != nil {
		l = zap.NewNop()
	}
	base = l
	return base
}

// Named returns a child logger scoped to component.
func Named(component string) *zap.Logger {
	return Get().Named(component)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	mu.Lock()
	l := base
	mu.Unlock()
	if l != nil {
		_ = l.Sync()
	}
}
