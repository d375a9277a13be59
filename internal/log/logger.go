// Package log provides a global logger with configurable logging level. Messages are emitted
// through zerolog, either as human-readable console lines (the default) or as JSON.

package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO
)

// Format selects how log lines are rendered.
type Format int

const (
	FormatConsole Format = iota
	FormatJSON
)

var (
	globalLogLevel Level
	logFormat      = FormatConsole
	output         io.Writer = os.Stderr
	logger         = newLogger(output, logFormat)
	logMutex       sync.Mutex
)

var zeroLevels = map[Level]zerolog.Level{
	LevelDebug:   zerolog.DebugLevel,
	LevelInfo:    zerolog.InfoLevel,
	LevelWarning: zerolog.WarnLevel,
	LevelError:   zerolog.ErrorLevel,
}

func newLogger(w io.Writer, format Format) zerolog.Logger {
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func SetLevel(level Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	globalLogLevel = level
}

// SetOutput redirects log lines to w. Passing nil restores os.Stderr.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
	logger = newLogger(output, logFormat)
}

// SetFormat switches between console and JSON output.
func SetFormat(format Format) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logFormat = format
	logger = newLogger(output, logFormat)
}

// ParseFormat maps "console" or "json" to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "console", "text":
		return FormatConsole, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatConsole, fmt.Errorf("unknown log format '%s'", name)
}

func current() (Level, zerolog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	return globalLogLevel, logger
}

func log(level Level, format string, a ...interface{}) {
	threshold, l := current()
	if level > threshold || level == LevelNone {
		return
	}
	l.WithLevel(zeroLevels[level]).Msgf(format, a...)
}

func Debug(format string, a ...interface{}) {
	log(LevelDebug, format, a...)
}
func Info(format string, a ...interface{}) {
	log(LevelInfo, format, a...)
}
func Warning(format string, a ...interface{}) {
	log(LevelWarning, format, a...)
}
func Error(format string, a ...interface{}) {
	log(LevelError, format, a...)
}
