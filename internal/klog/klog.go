// Package klog is the kernel's ambient structured-logging stack: a thin
// wrapper around github.com/joeycumines/logiface (the generic logging
// core) backed by github.com/joeycumines/izerolog +
// github.com/rs/zerolog. The wrapper keeps a narrow, non-generic
// surface so kernel code doesn't carry logiface's type parameter at
// every call site.
package klog

import (
	"os"
	"sync"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the kernel's structured logger handle. It is safe for
// concurrent use (logiface.Logger itself is), and is deliberately narrow:
// the kernel only ever needs level-gated "field, field, ..., message"
// calls, never the full fluent arrays/objects logiface also supports.
type Logger struct {
	inner *logiface.Logger[*izerolog.Event]
}

var (
	defaultOnce sync.Once
	defaultInst *Logger
)

// Default returns the package's default Logger: zerolog writing to
// stderr at Informational level and above, console-formatted for a human
// reading kernel trace output at a terminal rather than piping it to a
// log-aggregation backend (the façade/demo's intended audience).
func Default() *Logger {
	defaultOnce.Do(func() {
		zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		defaultInst = New(zl, logiface.LevelInformational)
	})
	return defaultInst
}

// New builds a Logger backed by the given zerolog.Logger, gated at level.
func New(zl zerolog.Logger, level logiface.Level) *Logger {
	return &Logger{
		inner: izerolog.L.New(
			izerolog.L.WithZerolog(zl),
			izerolog.L.WithLevel(level),
		),
	}
}

// NewNop returns a Logger with logging disabled entirely, for tests that
// don't want kernel trace output on stdout/stderr.
func NewNop() *Logger {
	return &Logger{
		inner: izerolog.L.New(
			izerolog.L.WithZerolog(zerolog.Nop()),
			izerolog.L.WithLevel(logiface.LevelDisabled),
		),
	}
}

// Event is one structured log call: level, category (e.g. "sched",
// "mutex", "timer"), and key/value fields. Building it
// up via a small struct instead of exposing logiface's generic Builder
// keeps call sites in the kernel package readable without a type
// parameter leaking out of klog.
type Event struct {
	level    logiface.Level
	category string
	fields   []field
}

type field struct {
	key string
	val any
}

func newEvent(level logiface.Level, category string) *Event {
	return &Event{level: level, category: category}
}

// Debug starts a debug-level event in category.
func Debug(category string) *Event { return newEvent(logiface.LevelDebug, category) }

// Info starts an informational-level event in category.
func Info(category string) *Event { return newEvent(logiface.LevelInformational, category) }

// Warn starts a warning-level event in category.
func Warn(category string) *Event { return newEvent(logiface.LevelWarning, category) }

// Error starts an error-level event in category.
func Error(category string) *Event { return newEvent(logiface.LevelError, category) }

// Str attaches a string field.
func (e *Event) Str(key, val string) *Event {
	e.fields = append(e.fields, field{key, val})
	return e
}

// Int attaches an integer field.
func (e *Event) Int(key string, val int) *Event {
	e.fields = append(e.fields, field{key, val})
	return e
}

// Uint64 attaches a uint64 field.
func (e *Event) Uint64(key string, val uint64) *Event {
	e.fields = append(e.fields, field{key, val})
	return e
}

// Err attaches an error field.
func (e *Event) Err(err error) *Event {
	e.fields = append(e.fields, field{"error", err})
	return e
}

// Log emits the event through l using msg, or does nothing if l is nil
// (so kernel code can hold a possibly-absent *Logger without nil checks
// at every call site).
func (e *Event) Log(l *Logger, msg string) {
	if l == nil || l.inner == nil {
		return
	}
	b := l.inner.Build(e.level)
	if b == nil || !b.Enabled() {
		return
	}
	b = b.Str("category", e.category)
	for _, f := range e.fields {
		switch v := f.val.(type) {
		case string:
			b = b.Str(f.key, v)
		case int:
			b = b.Int(f.key, v)
		case uint64:
			b = b.Any(f.key, v)
		case error:
			b = b.Err(v)
		default:
			b = b.Any(f.key, v)
		}
	}
	b.Log(msg)
}
