// Package logging provides the levelled, field-based logger used across the service.
// Records are emitted through log/slog so text and JSON output share one pipeline.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Output formats understood by NewWithWriter.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Fields are structured key/value pairs attached to a log record.
type Fields map[string]interface{}

// WithField returns a single-entry field set.
func WithField(key string, value interface{}) Fields {
	return Fields{key: value}
}

// WithFields returns the given map as a field set.
func WithFields(fields map[string]interface{}) Fields {
	return Fields(fields)
}

// Logger is a levelled logger.
type Logger struct {
	base  *slog.Logger
	level Level
}

// New creates a text logger writing to stderr.
func New(level Level) *Logger {
	return NewWithWriter(os.Stderr, level, FormatText)
}

// NewWithWriter creates a logger writing to w in the given format ("text" or "json").
func NewWithWriter(w io.Writer, level Level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: level.slogLevel()}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), FormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		base:  slog.New(handler),
		level: level,
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level. Anything else is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Level returns the minimum level this logger emits.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelError
	}
	return l.level
}

// With returns a child logger that always carries fields.
func (l *Logger) With(fields Fields) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		base:  slog.New(l.base.Handler().WithAttrs(toAttrs(fields))),
		level: l.level,
	}
}

func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(LevelInfo, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(LevelWarn, msg, fields)
}

func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(LevelError, msg, fields)
}

func (l *Logger) log(level Level, msg string, fields []Fields) {
	if l == nil || level < l.level {
		return
	}

	merged := Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	l.base.LogAttrs(context.Background(), level.slogLevel(), msg, toAttrs(merged)...)
}

func (lv Level) slogLevel() slog.Level {
	switch lv {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// toAttrs converts fields to attributes in key order so output is stable.
func toAttrs(fields Fields) []slog.Attr {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	return attrs
}
