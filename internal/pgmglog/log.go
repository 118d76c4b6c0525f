// Package pgmglog is the structured logging sink used across the core. It
// encodes key=value lines with github.com/go-logfmt/logfmt rather than
// printf-style strings, and the sink (io.Writer) is supplied by the caller
// at construction — there is no package-level logger singleton, matching
// §9's "Logging goes to a configurable sink passed in at the boundary."
package pgmglog

import (
	"io"
	"os"
	"sync"

	"github.com/go-logfmt/logfmt"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger encodes structured log lines to an underlying sink. The zero value
// discards everything, so components can accept a *Logger and treat nil as
// "no logging configured" without a nil check at every call site.
type Logger struct {
	mu     sync.Mutex
	enc    *logfmt.Encoder
	level  Level
	prefix []any
}

// New returns a Logger writing logfmt-encoded lines to w at or above min.
func New(w io.Writer, min Level) *Logger {
	return &Logger{enc: logfmt.NewEncoder(w), level: min}
}

// Discard is a Logger that drops every line; useful as a default in tests.
func Discard() *Logger { return New(io.Discard, LevelError+1) }

// Stderr is a convenience constructor matching the CLI's default sink.
func Stderr(min Level) *Logger { return New(os.Stderr, min) }

func (l *Logger) log(level Level, msg string, keyvals ...any) {
	if l == nil || l.enc == nil || level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kv := append([]any{"level", level.String(), "msg", msg}, l.prefix...)
	kv = append(kv, keyvals...)
	_ = l.enc.EncodeKeyvals(kv...)
	_ = l.enc.EndRecord()
}

func (l *Logger) Debug(msg string, keyvals ...any) { l.log(LevelDebug, msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...any)  { l.log(LevelInfo, msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...any)  { l.log(LevelWarn, msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...any) { l.log(LevelError, msg, keyvals...) }

// With returns a Logger that always injects the given keyvals (e.g. a run
// ID) ahead of every subsequent call's own keyvals.
func (l *Logger) With(keyvals ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{enc: l.enc, level: l.level, prefix: append(append([]any{}, l.prefix...), keyvals...)}
}
