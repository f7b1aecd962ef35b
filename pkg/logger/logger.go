// Package logger provides the leveled logging interface shared by all
// farmd components. Backends include console output, plain files and a
// broadcasting multi-logger.
package logger

import (
	"fmt"
	"log"
	"os"
)

// Logger is the logging contract used across farmd. Implementations may
// write to the console, a log file, or fan out to several sinks.
type Logger interface {
	// Info logs an informational message (e.g. "New schedule: 7 commits queued").
	Info(format string, args ...interface{})

	// Warning logs a recoverable problem (e.g. a failed state file write).
	Warning(format string, args ...interface{})

	// Error logs a failure (e.g. "git push failed: ...").
	Error(format string, args ...interface{})

	// Close releases any resources held by the logger (open file handles).
	// Safe to call more than once.
	Close() error
}

// StandardLogger writes leveled messages through a stdlib *log.Logger.
// This is the default console backend.
type StandardLogger struct {
	logger *log.Logger
}

// NewStandardLogger wraps the given *log.Logger.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

// Info logs with an [INFO] prefix.
func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

// Warning logs with a [WARNING] prefix.
func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

// Error logs with an [ERROR] prefix.
func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

// Close is a no-op for StandardLogger.
func (s *StandardLogger) Close() error {
	return nil
}

// FileLogger appends leveled messages to a log file. Used when the
// LOG_FILE option requests a secondary on-disk sink.
type FileLogger struct {
	f      *os.File
	logger *log.Logger
}

// NewFileLogger opens (or creates) path in append mode and returns a
// logger writing timestamped lines to it.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return &FileLogger{
		f:      f,
		logger: log.New(f, "", log.LstdFlags),
	}, nil
}

// Info logs with an [INFO] prefix.
func (fl *FileLogger) Info(format string, args ...interface{}) {
	fl.logger.Printf("[INFO] "+format, args...)
}

// Warning logs with a [WARNING] prefix.
func (fl *FileLogger) Warning(format string, args ...interface{}) {
	fl.logger.Printf("[WARNING] "+format, args...)
}

// Error logs with an [ERROR] prefix.
func (fl *FileLogger) Error(format string, args ...interface{}) {
	fl.logger.Printf("[ERROR] "+format, args...)
}

// Close closes the underlying file. Subsequent calls return nil.
func (fl *FileLogger) Close() error {
	if fl.f == nil {
		return nil
	}
	err := fl.f.Close()
	fl.f = nil
	return err
}

// NopLogger discards all messages. Used in tests and in read-only
// commands that should stay quiet.
type NopLogger struct{}

// NewNopLogger creates a logger that discards all messages.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Info discards the message.
func (n *NopLogger) Info(format string, args ...interface{}) {}

// Warning discards the message.
func (n *NopLogger) Warning(format string, args ...interface{}) {}

// Error discards the message.
func (n *NopLogger) Error(format string, args ...interface{}) {}

// Close is a no-op.
func (n *NopLogger) Close() error {
	return nil
}

// Ensure implementations satisfy the Logger interface.
var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*FileLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)
