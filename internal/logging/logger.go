package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with a key-value field API
type Logger struct {
	zl     zerolog.Logger
	fields map[string]any // Fields attached by With()
}

// NewProduction creates a logger writing JSON to stderr at info level
func NewProduction() *Logger {
	return NewWithWriter(os.Stderr, zerolog.InfoLevel)
}

// NewDevelopment creates a logger with pretty console output at debug level
func NewDevelopment() *Logger {
	return NewWithWriter(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}, zerolog.DebugLevel)
}

// NewWithWriter creates a logger with custom writer
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	zl := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...any) {
	l.emit(l.zl.Debug(), msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...any) {
	l.emit(l.zl.Info(), msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...any) {
	l.emit(l.zl.Warn(), msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...any) {
	l.emit(l.zl.Error(), msg, fields)
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level zerolog.Level) bool {
	return l.zl.GetLevel() <= level
}

// With creates a child logger with additional fields
func (l *Logger) With(fields ...any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(fields)/2)
	for k, v := range l.fields {
		merged[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			merged[key] = fields[i+1]
		}
	}

	return &Logger{zl: l.zl, fields: merged}
}

func (l *Logger) emit(e *zerolog.Event, msg string, fields []any) {
	if e == nil {
		return
	}
	for k, v := range l.fields {
		addField(e, k, v)
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		addField(e, key, fields[i+1])
	}
	e.Msg(msg)
}

func addField(e *zerolog.Event, key string, value any) {
	// errors marshal as {} through Interface
	if err, ok := value.(error); ok {
		e.Str(key, err.Error())
		return
	}
	if d, ok := value.(time.Duration); ok {
		e.Dur(key, d)
		return
	}
	e.Interface(key, value)
}

// Field constructors, returning key and value for the variadic API

// String creates a string field
func String(key, val string) (string, any) {
	return key, val
}

// Int creates an int field
func Int(key string, val int) (string, any) {
	return key, val
}

// Err creates an error field
func Err(err error) (string, any) {
	return "error", err
}

// Duration creates a duration field
func Duration(key string, val time.Duration) (string, any) {
	return key, val
}
