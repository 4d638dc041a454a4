// Package logger provides a simple leveled logger for the application.
// It supports three levels: off (no output), normal (info/warn/error),
// and verbose (includes debug). The logger is safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level controls the verbosity of the logger.
type Level int

const (
	// LevelOff disables all log output.
	LevelOff Level = iota
	// LevelNormal enables info, warn, and error output.
	LevelNormal
	// LevelVerbose enables all output including debug.
	LevelVerbose
)

// ParseLevel converts "off", "normal" or "verbose" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "quiet":
		return LevelOff, nil
	case "", "normal", "info":
		return LevelNormal, nil
	case "verbose", "debug":
		return LevelVerbose, nil
	default:
		return LevelNormal, fmt.Errorf("unknown log level %q", s)
	}
}

// String returns the level name accepted by ParseLevel.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelVerbose:
		return "verbose"
	default:
		return "normal"
	}
}

// NewRotatingFile returns a writer that appends to path and rotates it
// once it grows past maxSizeMB. The parent directory is created.
func NewRotatingFile(path string, maxSizeMB int) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 8
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 3,
		MaxAge:     14,
	}, nil
}

// Logger is a leveled logger. The level is fixed at creation, so all
// methods are safe for concurrent use.
type Logger struct {
	level Level
	out   *log.Logger
}

// New creates a logger with the given level, writing to the given output.
// If out is nil, os.Stderr is used.
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{level: level, out: log.New(out, "", log.Ltime)}
}

// enabled reports whether messages at level are written.
func (l *Logger) enabled(level Level) bool {
	return level != LevelOff && l.level >= level
}

// Debug logs a message at debug level (only visible in verbose mode).
func (l *Logger) Debug(format string, args ...any) { l.logf(LevelVerbose, "[DBG] ", format, args) }

// Info logs a message at info level.
func (l *Logger) Info(format string, args ...any) { l.logf(LevelNormal, "[INF] ", format, args) }

// Warn logs a message at warn level.
func (l *Logger) Warn(format string, args ...any) { l.logf(LevelNormal, "[WRN] ", format, args) }

// Error logs a message at error level.
func (l *Logger) Error(format string, args ...any) { l.logf(LevelNormal, "[ERR] ", format, args) }

func (l *Logger) logf(level Level, tag, format string, args []any) {
	if !l.enabled(level) {
		return
	}
	l.out.Output(3, tag+fmt.Sprintf(format, args...))
}
