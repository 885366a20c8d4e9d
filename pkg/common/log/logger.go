// Package log provides the leveled logger shared by flashkv components.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level represents the logging level
type Level int32

const (
	// LevelDebug level for per-record and per-flash-operation tracing
	LevelDebug Level = iota
	// LevelInfo level for page discovery, compaction and other lifecycle events
	LevelInfo
	// LevelWarn level for corrupt records and recoverable oddities found on flash
	LevelWarn
	// LevelError level for failed flash operations
	LevelError
	// LevelFatal level for conditions the process cannot continue from
	LevelFatal
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger interface defines the methods for logging at different levels
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// Fatal logs a fatal-level message and then calls os.Exit(1)
	Fatal(msg string, args ...interface{})
	// WithFields returns a new logger with the given fields added to the context
	WithFields(fields map[string]interface{}) Logger
	// WithField returns a new logger with the given field added to the context
	WithField(key string, value interface{}) Logger
	GetLevel() Level
	SetLevel(level Level)
}

// StandardLogger writes one line per entry: timestamp, level, sorted fields, message.
type StandardLogger struct {
	mu     *sync.Mutex
	level  *atomic.Int32
	out    io.Writer
	fields map[string]interface{}
}

// NewStandardLogger creates a new StandardLogger with the given options
func NewStandardLogger(options ...LoggerOption) *StandardLogger {
	logger := &StandardLogger{
		mu:     &sync.Mutex{},
		level:  &atomic.Int32{},
		out:    os.Stderr,
		fields: make(map[string]interface{}),
	}
	logger.level.Store(int32(LevelInfo))

	for _, option := range options {
		option(logger)
	}

	return logger
}

// LoggerOption is a function that configures a StandardLogger
type LoggerOption func(*StandardLogger)

// WithLevel sets the logging level
func WithLevel(level Level) LoggerOption {
	return func(l *StandardLogger) {
		l.level.Store(int32(level))
	}
}

// WithOutput sets the output writer
func WithOutput(out io.Writer) LoggerOption {
	return func(l *StandardLogger) {
		l.out = out
	}
}

// WithInitialFields sets initial fields for the logger
func WithInitialFields(fields map[string]interface{}) LoggerOption {
	return func(l *StandardLogger) {
		for k, v := range fields {
			l.fields[k] = v
		}
	}
}

func (l *StandardLogger) log(level Level, msg string, args ...interface{}) {
	if level < l.GetLevel() {
		return
	}

	formattedMsg := msg
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	b.WriteString("] [")
	b.WriteString(level.String())
	b.WriteString("]")

	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}

	b.WriteString(" ")
	b.WriteString(formattedMsg)
	b.WriteString("\n")

	// Loggers derived with WithFields share the mutex, so lines never interleave
	l.mu.Lock()
	io.WriteString(l.out, b.String())
	l.mu.Unlock()

	if level == LevelFatal {
		os.Exit(1)
	}
}

func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

func (l *StandardLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

func (l *StandardLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

func (l *StandardLogger) Fatal(msg string, args ...interface{}) {
	l.log(LevelFatal, msg, args...)
}

// WithFields returns a child logger. The child shares the parent's level and
// output, so SetLevel on the root affects every component logger.
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	child := &StandardLogger{
		mu:     l.mu,
		level:  l.level,
		out:    l.out,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
	}

	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}

	return child
}

func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *StandardLogger) GetLevel() Level {
	return Level(l.level.Load())
}

func (l *StandardLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

var defaultLogger = NewStandardLogger()

// SetDefaultLogger sets the default logger instance
func SetDefaultLogger(logger *StandardLogger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the default logger instance
func GetDefaultLogger() *StandardLogger {
	return defaultLogger
}

// NewDiscardLogger returns a logger that drops everything; tests use it to keep output quiet
func NewDiscardLogger() *StandardLogger {
	return NewStandardLogger(WithOutput(io.Discard), WithLevel(LevelFatal+1))
}

func Debug(msg string, args ...interface{}) {
	defaultLogger.Debug(msg, args...)
}

func Info(msg string, args ...interface{}) {
	defaultLogger.Info(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	defaultLogger.Warn(msg, args...)
}

func Error(msg string, args ...interface{}) {
	defaultLogger.Error(msg, args...)
}

func Fatal(msg string, args ...interface{}) {
	defaultLogger.Fatal(msg, args...)
}

func WithFields(fields map[string]interface{}) Logger {
	return defaultLogger.WithFields(fields)
}

func WithField(key string, value interface{}) Logger {
	return defaultLogger.WithField(key, value)
}

// SetLevel sets the logging level of the default logger
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}
