package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/stepperctl/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the global logger based on the given configuration
func Init(level LogLevel, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(level)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// ParseLevel converts a configured level name into a LogLevel
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(name) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, name)
	}
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// componentLogger is a Logger bound to a zerolog instance and component name
type componentLogger struct {
	l *zerolog.Logger
}

// Default returns a Logger writing through the global logger
func Default() Logger {
	return &componentLogger{l: &log}
}

// New returns a Logger writing JSON lines to w
func New(w io.Writer) Logger {
	l := zerolog.New(w).With().Timestamp().Logger()
	return &componentLogger{l: &l}
}

// Nop returns a Logger that discards everything
func Nop() Logger {
	l := zerolog.Nop()
	return &componentLogger{l: &l}
}

func (c *componentLogger) Debug() *LogEvent {
	return &LogEvent{c.l.Debug()}
}

func (c *componentLogger) Info() *LogEvent {
	return &LogEvent{c.l.Info()}
}

func (c *componentLogger) Warn() *LogEvent {
	return &LogEvent{c.l.Warn()}
}

func (c *componentLogger) Error() *LogEvent {
	return &LogEvent{c.l.Error()}
}

func (c *componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(c.l.Error(), err)
}

func (c *componentLogger) ErrorWithContext(err errors.Error, component, operation string) *LogEvent {
	return &LogEvent{withCode(c.l.Error(), err).
		Str("component", component).
		Str("operation", operation)}
}

func (c *componentLogger) With(component string) Logger {
	l := c.l.With().Str("component", component).Logger()
	return &componentLogger{l: &l}
}
