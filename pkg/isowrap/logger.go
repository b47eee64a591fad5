package isowrap

import (
	"fmt"
	"log"
	"os"
	"time"
)

// Logger provides structured logging capabilities
// This abstraction allows swapping logging implementations
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})
}

// defaultLogger implements Logger using Go's standard log package
// Can be swapped with other logging implementations
type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
}

// NewDefaultLogger creates a new default logger implementation
func NewDefaultLogger() Logger {
	return &defaultLogger{
		errorLogger: log.New(os.Stderr, "[ERROR] ", 0),
		warnLogger:  log.New(os.Stderr, "[WARN] ", 0),
		infoLogger:  log.New(os.Stderr, "[INFO] ", 0),
		debugLogger: log.New(os.Stderr, "[DEBUG] ", 0),
	}
}

func (l *defaultLogger) Error(args ...interface{}) {
	l.errorLogger.Output(3, fmt.Sprint(args...))
}

func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.errorLogger.Output(3, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Warn(args ...interface{}) {
	l.warnLogger.Output(3, fmt.Sprint(args...))
}

func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.warnLogger.Output(3, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Info(args ...interface{}) {
	l.infoLogger.Output(3, fmt.Sprint(args...))
}

func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.infoLogger.Output(3, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) Debug(args ...interface{}) {
	l.debugLogger.Output(3, fmt.Sprint(args...))
}

func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.debugLogger.Output(3, fmt.Sprintf(format, args...))
}

// eventLog emits one line per lifecycle or per-message event, tagged with
// an ISO-8601 millisecond UTC timestamp and the wrapper's name. Disabled
// loggers are zero-cost no-ops.
type eventLog struct {
	name    string
	enabled bool
	logger  Logger
}

func (l eventLog) logf(format string, args ...interface{}) {
	if !l.enabled {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	l.logger.Infof("%s %s: %s", ts, l.name, fmt.Sprintf(format, args...))
}

func (l eventLog) errorf(format string, args ...interface{}) {
	if !l.enabled {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	l.logger.Errorf("%s %s: %s", ts, l.name, fmt.Sprintf(format, args...))
}
