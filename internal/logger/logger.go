// Package logger provides a structured, module-aware logging system built on Go's standard log/slog.
//
// A single CentralLogger is configured at startup from LoggingConfig and
// installed with SetGlobal. Packages obtain a module scoped logger from it:
//
//	log := logger.Global().Module("hostapi")
//	log.Info("stream opened",
//	    logger.String("mode", "blocking"),
//	    logger.Int("channels", 2))
//
// Console output is human readable text on stderr so that commands writing
// data to stdout stay pipeable. Optional file output is JSON, one record
// per line, for log aggregation.
//
// Sub-modules join with a dot:
//
//	pulseLog := logger.Global().Module("audioserver").Module("pulse")
//	pulseLog.Debug("sink listed")  // module="audioserver.pulse"
//
// Persistent fields are accumulated with With.
package logger

import (
	"time"
	"unique"
)

// LogLevel is the textual log level used in configuration
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is a single structured key/value pair
type Field struct {
	Key   string
	Value any
}

// internKey deduplicates frequently used field keys
func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey  = internKey("error")
	moduleKey = internKey("module")
)

// Logger is the interface all components log through
type Logger interface {
	// Module returns a child logger for a sub-module
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that adds fields to every record
	With(fields ...Field) Logger

	Log(level LogLevel, msg string, fields ...Field)

	Flush() error
}

func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Uint32(key string, value uint32) Field {
	return Field{Key: internKey(key), Value: int64(value)}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error returns an "error" field holding the error text, nil safe
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value}
}

func Time(key string, value time.Time) Field {
	return Field{Key: internKey(key), Value: value}
}

func Any(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
