package helpers

import (
	"fmt"
	"os"
	"sync"
	"time"

	"sjsage522/listingworker/logger"
)

// LoggerInterface records per-item failures that were skipped during a run
type LoggerInterface interface {
	LogError(component string, err error)
	LogInfo(format string, args ...interface{})
}

// Logger appends failures to a file and forwards info lines to the default logger
type Logger struct {
	mu        sync.Mutex
	errorFile string
}

// NewLogger creates a new logger instance
func NewLogger(errorFile string) *Logger {
	return &Logger{
		errorFile: errorFile,
	}
}

// LogError appends an error line with component name and timestamp
func (l *Logger) LogError(component string, err error) {
	l.appendLine(component, err.Error())
}

// LogInfo appends an informational line, typically a run summary that puts
// the preceding failures in context, and echoes it to the default logger
func (l *Logger) LogInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.appendLine("info", msg)
	logger.Info("%s", msg)
}

func (l *Logger) appendLine(component, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, fileErr := os.OpenFile(l.errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		logger.LogError(component, fileErr, "failed to open failure log %s", l.errorFile)
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(f, "[%s] [%s] %s\n", timestamp, component, msg)
}

// NopLogger drops everything. Used when no failure log file is configured.
type NopLogger struct{}

func (NopLogger) LogError(string, error)        {}
func (NopLogger) LogInfo(string, ...interface{}) {}

// NewFailureLogger returns a file logger when path is set, otherwise a no-op
func NewFailureLogger(path string) LoggerInterface {
	if path == "" {
		return NopLogger{}
	}
	return NewLogger(path)
}
