package log

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Logger writes log lines to a file that can be reopened after an external rotation.
// It implements io.Writer so it can back a slog handler.
type Logger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	mirror   io.Writer
	rotation int
}

var (
	logger   *Logger
	loggerMu sync.Mutex
)

// GetLogger returns the process file logger, nil when none is installed.
func GetLogger() *Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	return logger
}

// SetLogger installs l as the process file logger and closes the previous one.
func SetLogger(l *Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil && logger != l {
		logger.Close()
	}
	logger = l
}

// NewLogger opens filename in append mode. When mirror is not nil every
// line is also copied to it (typically os.Stderr in debug mode).
func NewLogger(filename string, mirror io.Writer) (*Logger, error) {
	file, err := openLogFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &Logger{path: filename, file: file, mirror: mirror}, nil
}

func openLogFile(filename string) (*os.File, error) {
	return os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}

// Write implements io.Writer.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mirror != nil {
		_, _ = l.mirror.Write(p)
	}
	if l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Rotations returns how many times the file was reopened.
func (l *Logger) Rotations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotation
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// Rotate closes and reopens the log file
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil // closed or never opened
	}
	_ = l.file.Close()

	file, err := openLogFile(l.path)
	if err != nil {
		l.file = nil
		return fmt.Errorf("failed to reopen log file: %w", err)
	}
	l.file = file
	l.rotation++
	return nil
}
